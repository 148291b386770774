package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/ariefcatur/go-marketplace/internal/telemetry"
	"github.com/segmentio/kafka-go"
)

// ReplyHandler serves an RPC topic; its return value (or error) is published back to the caller.
type ReplyHandler func(ctx context.Context, payload json.RawMessage) (any, error)

// EventHandler consumes an emitted event. Returning a retryable error redelivers it.
type EventHandler func(ctx context.Context, env Envelope) error

type ResponderConfig struct {
	Brokers []string
	Group   string
	Workers int
	Connect retry.Policy
}

// Responder is the service half of the broker abstraction: an explicit topic table
// consumed by one consumer group.
type Responder struct {
	cfg ResponderConfig
	log *slog.Logger

	replies map[string]ReplyHandler
	events  map[string]EventHandler

	dial      func(ctx context.Context, topics []string) error
	newReader func(topics []string) MessageReader
	writer    MessageWriter
}

func NewResponder(cfg ResponderConfig, log *slog.Logger) *Responder {
	return &Responder{
		cfg:     cfg,
		log:     log,
		replies: make(map[string]ReplyHandler),
		events:  make(map[string]EventHandler),
		dial: func(ctx context.Context, topics []string) error {
			return EnsureTopics(ctx, cfg.Brokers, topics...)
		},
		newReader: func(topics []string) MessageReader {
			return NewReader(cfg.Brokers, cfg.Group, topics...)
		},
		writer: NewWriter(cfg.Brokers),
	}
}

func (r *Responder) RegisterReplyHandler(topic string, h ReplyHandler) {
	r.replies[topic] = h
}

func (r *Responder) RegisterEventHandler(topic string, h EventHandler) {
	r.events[topic] = h
}

func (r *Responder) Topics() []string {
	out := make([]string, 0, len(r.replies)+len(r.events))
	for t := range r.replies {
		out = append(out, t)
	}
	for t := range r.events {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run connects (bounded retries) and consumes until ctx is done.
func (r *Responder) Run(ctx context.Context) error {
	topics := r.Topics()
	err := retry.Do(ctx, r.cfg.Connect, func(ctx context.Context, attempt int) error {
		if err := r.dial(ctx, topics); err != nil {
			r.log.Warn("kafka connect failed", "attempt", attempt, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kafka connect: %w", err)
	}
	defer r.writer.Close()

	r.log.Info("responder started", "group", r.cfg.Group, "topics", topics)
	c := NewConsumer(r.newReader(topics), r.log, r.cfg.Workers)
	return c.Start(ctx, r.Handle)
}

// Handle dispatches one message by topic.
func (r *Responder) Handle(ctx context.Context, m kafka.Message) error {
	ctx = telemetry.ExtractKafkaHeaders(ctx, m.Headers)
	if h, ok := r.replies[m.Topic]; ok {
		return r.reply(ctx, h, m)
	}
	if h, ok := r.events[m.Topic]; ok {
		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return apperr.BadRequest("malformed event on %s: %v", m.Topic, err)
		}
		return h(ctx, env)
	}
	r.log.Warn("no handler for topic", "topic", m.Topic)
	return nil
}

func (r *Responder) reply(ctx context.Context, h ReplyHandler, m kafka.Message) error {
	id := headerValue(m.Headers, HeaderCorrelationID)
	to := headerValue(m.Headers, HeaderReplyTopic)
	if id == "" || to == "" {
		r.log.Warn("rpc request without reply route", "topic", m.Topic)
		return nil
	}

	var env replyEnvelope
	v, err := h(ctx, m.Value)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			r.log.Error("rpc handler failed", "topic", m.Topic, "err", err)
		}
		env.Error = apperr.ToWire(err)
	} else if env.Data, err = json.Marshal(v); err != nil {
		env.Error = apperr.ToWire(apperr.Internal("encode reply", err))
	}

	out := kafka.Message{
		Topic:   to,
		Key:     []byte(id),
		Value:   MustMarshal(env),
		Headers: []kafka.Header{{Key: HeaderCorrelationID, Value: []byte(id)}},
	}
	if err := r.writer.WriteMessages(ctx, out); err != nil {
		return apperr.ServiceUnavailable("publish reply", err)
	}
	return nil
}
