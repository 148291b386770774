package users

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/kafka"
)

const (
	TopicGetBulk       = "user.get.bulk"
	TopicCreateTemp    = "user.create.temp"
	TopicValidateToken = "user.validate.token"
)

type Registrar interface {
	RegisterReplyHandler(topic string, h kafka.ReplyHandler)
}

// Register binds the user service's RPC topics.
func Register(r Registrar, svc *Service) {
	r.RegisterReplyHandler(TopicGetBulk, func(ctx context.Context, payload json.RawMessage) (any, error) {
		req, err := kafka.UnwrapPayload[struct {
			UserIDs []string `json:"userIds"`
		}](payload)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		return svc.GetBulk(ctx, req.UserIDs)
	})
	r.RegisterReplyHandler(TopicCreateTemp, func(ctx context.Context, payload json.RawMessage) (any, error) {
		in, err := kafka.UnwrapPayload[TempInput](payload)
		if err != nil {
			return nil, apperr.BadRequest("%v", err)
		}
		id, err := svc.CreateTemp(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": id}, nil
	})
	r.RegisterReplyHandler(TopicValidateToken, func(ctx context.Context, payload json.RawMessage) (any, error) {
		token, err := kafka.UnwrapPayload[string](payload)
		if err != nil {
			return nil, apperr.Unauthorized("Invalid token")
		}
		return svc.ValidateToken(ctx, token)
	})
}

type Requester interface {
	Request(ctx context.Context, topic string, payload, out any) error
}

// Client is how other services reach the user service.
type Client struct{ Broker Requester }

func (c Client) ValidateToken(ctx context.Context, token string) (User, error) {
	var u User
	if err := c.Broker.Request(ctx, TopicValidateToken, token, &u); err != nil {
		return User{}, err
	}
	return u, nil
}
