package products

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/kafka"
)

const topicUserGetBulk = "user.get.bulk"

type Requester interface {
	Request(ctx context.Context, topic string, payload, out any) error
}

// UserDirectory resolves sellers through the user service.
type UserDirectory struct{ Broker Requester }

func (u UserDirectory) Sellers(ctx context.Context, ids []string) ([]Seller, error) {
	if len(ids) == 0 {
		return []Seller{}, nil
	}
	var out []Seller
	if err := u.Broker.Request(ctx, topicUserGetBulk, map[string][]string{"userIds": ids}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type Registrar interface {
	RegisterReplyHandler(topic string, h kafka.ReplyHandler)
	RegisterEventHandler(topic string, h kafka.EventHandler)
}

// Register binds the product service's topics.
func Register(r Registrar, svc *Service, ledger *Ledger) {
	r.RegisterReplyHandler(TopicDetailsBulk, func(ctx context.Context, payload json.RawMessage) (any, error) {
		req, err := kafka.UnwrapPayload[struct {
			ProductIDs []string `json:"productIds"`
		}](payload)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		return svc.Details(ctx, req.ProductIDs)
	})
	r.RegisterReplyHandler(TopicIDsBySeller, func(ctx context.Context, payload json.RawMessage) (any, error) {
		req, err := kafka.UnwrapPayload[struct {
			SellerID string `json:"sellerId"`
		}](payload)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		return svc.IDsBySeller(ctx, req.SellerID)
	})
	r.RegisterEventHandler(TopicStockDecrease, stockHandler(ledger, Decrease))
	r.RegisterEventHandler(TopicStockIncrease, stockHandler(ledger, Increase))
}

func stockHandler(l *Ledger, d Direction) kafka.EventHandler {
	return func(ctx context.Context, env kafka.Envelope) error {
		ev, err := kafka.UnwrapPayload[StockEvent](env.Payload)
		if err != nil {
			return apperr.BadRequest("%v", err)
		}
		err = l.Apply(ctx, env.EventID, ev.OrderID, d, ev.Items)
		if err != nil && !kafka.Retryable(err) {
			// batch ditolak: tidak ada yang berubah, order service tidak diberi tahu
			l.Log.Warn("stock batch rejected", "event_id", env.EventID, "order_id", ev.OrderID,
				"direction", d, "err", err)
		}
		return err
	}
}
