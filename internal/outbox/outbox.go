package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
)

type Store interface {
	Add(ctx context.Context, topic string, key, value []byte) error
	LockBatch(ctx context.Context, n int, lease time.Duration) ([]Entry, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, msg string) error
}

// Outbox parks stock events that could not be handed to the broker.
type Outbox struct {
	Store    Store
	Producer string
	Log      *slog.Logger
}

// Defer stores an event whose Emit failed before it reached the producer.
func (o *Outbox) Defer(ctx context.Context, topic, key string, payload any) error {
	env, err := kafka.NewEnvelope(o.Producer, topic, key, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	if err := o.Store.Add(ctx, topic, []byte(key), kafka.MustMarshal(env)); err != nil {
		return err
	}
	o.Log.Warn("stock event deferred", "topic", topic, "key", key, "event_id", env.EventID)
	return nil
}

// Capture is the broker's emit-failure hook: the producer gave up on m after
// Emit already returned, so the encoded message is stored as is.
func (o *Outbox) Capture(m kafkago.Message, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Store.Add(ctx, m.Topic, m.Key, m.Value); err != nil {
		o.Log.Error("stock event lost", "topic", m.Topic, "key", string(m.Key), "cause", cause, "err", err)
		return
	}
	o.Log.Warn("stock event captured for relay", "topic", m.Topic, "key", string(m.Key), "cause", cause)
}
