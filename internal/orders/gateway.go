package orders

import (
	"context"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
)

type Requester interface {
	Request(ctx context.Context, topic string, payload, out any) error
}

// Gateway reaches the product and user services over request/reply.
type Gateway struct{ Broker Requester }

// TempUser identifies a guest buyer.
type TempUser struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (g Gateway) ProductIDsBySeller(ctx context.Context, sellerID string) ([]string, error) {
	var ids []string
	err := g.Broker.Request(ctx, TopicProductIDsBySeller, map[string]string{"sellerId": sellerID}, &ids)
	if err != nil {
		return nil, upstream("Failed to fetch products by seller", err)
	}
	return ids, nil
}

// Products returns what the product service knows of ids. No ids, no call.
func (g Gateway) Products(ctx context.Context, ids []string) ([]ProductInfo, error) {
	if len(ids) == 0 {
		return []ProductInfo{}, nil
	}
	var out []ProductInfo
	if err := g.Broker.Request(ctx, TopicProductDetailsBulk, map[string][]string{"productIds": ids}, &out); err != nil {
		return nil, upstream("Failed to fetch product details", err)
	}
	return out, nil
}

func (g Gateway) Users(ctx context.Context, ids []string) ([]UserInfo, error) {
	if len(ids) == 0 {
		return []UserInfo{}, nil
	}
	var out []UserInfo
	if err := g.Broker.Request(ctx, TopicUserGetBulk, map[string][]string{"userIds": ids}, &out); err != nil {
		return nil, upstream("Failed to fetch buyer details", err)
	}
	return out, nil
}

func (g Gateway) CreateTempUser(ctx context.Context, u TempUser) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := g.Broker.Request(ctx, TopicUserCreateTemp, u, &out); err != nil {
		return "", upstream("Failed to create guest buyer", err)
	}
	if out.ID == "" {
		return "", apperr.ServiceUnavailable("Failed to create guest buyer", nil)
	}
	return out.ID, nil
}

// upstream keeps typed client errors of the remote service and turns
// everything else into ServiceUnavailable.
func upstream(msg string, err error) error {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindBadRequest, apperr.KindConflict:
		return err
	}
	return apperr.ServiceUnavailable(msg, err)
}
