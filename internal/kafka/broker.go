package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/ariefcatur/go-marketplace/internal/telemetry"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type BrokerConfig struct {
	Brokers        []string
	ClientID       string
	RequestTimeout time.Duration
	Connect        retry.Policy
	Buffer         int
}

// Broker is the client half of the broker abstraction: fire-and-forget Emit and
// correlated Request/reply. One Broker per process, shared by all callers.
type Broker struct {
	cfg        BrokerConfig
	log        *slog.Logger
	replyTopic string

	// overridable for tests
	dial           func(ctx context.Context) error
	newWriter      func() MessageWriter
	newEventWriter func(done func(msgs []kafka.Message, err error)) MessageWriter
	newReader      func() MessageReader

	// direct carries requests and relayed events, where the caller waits for the ack
	direct   MessageWriter
	producer *Producer
	replies  MessageReader

	// mu guards pending, connected and onFailure
	mu        sync.Mutex
	onFailure FailureFunc
	pending map[string]chan replyEnvelope

	stop      context.CancelFunc
	loopDone  chan struct{}
	connected bool
	closeOnce sync.Once
}

func NewBroker(cfg BrokerConfig, log *slog.Logger) *Broker {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	b := &Broker{
		cfg:        cfg,
		log:        log,
		replyTopic: cfg.ClientID + ".replies",
		pending:    make(map[string]chan replyEnvelope),
	}
	b.dial = func(ctx context.Context) error {
		return EnsureTopics(ctx, cfg.Brokers, b.replyTopic)
	}
	b.newWriter = func() MessageWriter { return NewWriter(cfg.Brokers) }
	b.newEventWriter = func(done func([]kafka.Message, error)) MessageWriter {
		return NewAsyncWriter(cfg.Brokers, done)
	}
	b.newReader = func() MessageReader {
		// group per instance: every instance sees every reply and keeps only its own
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.ClientID + "-" + uuid.NewString()[:8],
			Topic:       b.replyTopic,
			StartOffset: kafka.LastOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     100 * time.Millisecond,
		})
	}
	return b
}

// Connect fails when the broker stays unreachable for the whole retry budget.
func (b *Broker) Connect(ctx context.Context) error {
	err := retry.Do(ctx, b.cfg.Connect, func(ctx context.Context, attempt int) error {
		if err := b.dial(ctx); err != nil {
			b.log.Warn("kafka connect failed", "attempt", attempt, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kafka connect: %w", err)
	}

	b.direct = b.newWriter()
	p := NewAsyncProducer(b.newEventWriter, b.log, b.cfg.Buffer)
	b.mu.Lock()
	p.SetOnFailure(b.onFailure)
	b.producer = p
	b.mu.Unlock()
	p.Start()
	b.replies = b.newReader()

	loopCtx, cancel := context.WithCancel(context.Background())
	b.stop = cancel
	b.loopDone = make(chan struct{})
	go b.replyLoop(loopCtx)

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	b.log.Info("kafka connected", "brokers", b.cfg.Brokers, "reply_topic", b.replyTopic)
	return nil
}

// OnEmitFailure registers the callback for events that could not be delivered.
// Safe before or after Connect.
func (b *Broker) OnEmitFailure(f FailureFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onFailure = f
	if b.producer != nil {
		b.producer.SetOnFailure(f)
	}
}

// Emit publishes an event without waiting for delivery.
func (b *Broker) Emit(ctx context.Context, topic, key string, payload any) error {
	if b.producer == nil {
		return apperr.ServiceUnavailable("broker not connected", nil)
	}
	env, err := NewEnvelope(b.cfg.ClientID, topic, key, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	m := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: MustMarshal(env),
		Headers: telemetry.InjectKafkaHeaders(ctx, []kafka.Header{
			{Key: HeaderEventType, Value: []byte(topic)},
			{Key: HeaderEventVersion, Value: []byte("1")},
		}),
	}
	if err := b.producer.Publish(m); err != nil {
		return apperr.ServiceUnavailable("emit "+topic, err)
	}
	return nil
}

// EmitRaw re-publishes an already encoded message, used by the reconciliation relay.
func (b *Broker) EmitRaw(ctx context.Context, topic string, key, value []byte) error {
	if b.producer == nil {
		return apperr.ServiceUnavailable("broker not connected", nil)
	}
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(topic)}},
	}
	if err := b.direct.WriteMessages(ctx, m); err != nil {
		return apperr.ServiceUnavailable("emit "+topic, err)
	}
	return nil
}

// Request publishes payload on topic and decodes the single reply into out.
func (b *Broker) Request(ctx context.Context, topic string, payload, out any) error {
	return b.RequestTimeout(ctx, topic, payload, out, b.cfg.RequestTimeout)
}

func (b *Broker) RequestTimeout(ctx context.Context, topic string, payload, out any, timeout time.Duration) error {
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return apperr.ServiceUnavailable(topic+": broker not connected", nil)
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", topic, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id := uuid.NewString()
	ch := make(chan replyEnvelope, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	m := kafka.Message{
		Topic: topic,
		Key:   []byte(id),
		Value: value,
		Headers: telemetry.InjectKafkaHeaders(ctx, []kafka.Header{
			{Key: HeaderCorrelationID, Value: []byte(id)},
			{Key: HeaderReplyTopic, Value: []byte(b.replyTopic)},
		}),
	}
	if err := b.direct.WriteMessages(ctx, m); err != nil {
		return apperr.ServiceUnavailable(topic+": request not delivered", err)
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return apperr.ServiceUnavailable(topic+": broker closed", nil)
		}
		if r.Error != nil {
			return r.Error.Err()
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(r.Data, out); err != nil {
			return apperr.ServiceUnavailable(topic+": malformed reply", err)
		}
		return nil
	case <-ctx.Done():
		return apperr.ServiceUnavailable(topic+": no reply", ctx.Err())
	}
}

func (b *Broker) replyLoop(ctx context.Context) {
	defer close(b.loopDone)
	for {
		m, err := b.replies.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			b.log.Warn("reply fetch failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		b.deliver(m)
		_ = b.replies.CommitMessages(ctx, m)
	}
}

func (b *Broker) deliver(m kafka.Message) {
	id := headerValue(m.Headers, HeaderCorrelationID)
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		// reply for another instance, or the caller already timed out
		return
	}
	var r replyEnvelope
	if err := json.Unmarshal(m.Value, &r); err != nil {
		r = replyEnvelope{Error: apperr.ToWire(apperr.ServiceUnavailable("malformed reply", err))}
	}
	ch <- r
}

// Close is idempotent. Queued events are flushed, pending requests fail fast.
func (b *Broker) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		wasConnected := b.connected
		b.connected = false
		for id, ch := range b.pending {
			close(ch)
			delete(b.pending, id)
		}
		b.mu.Unlock()
		if !wasConnected {
			return
		}
		b.stop()
		_ = b.replies.Close()
		<-b.loopDone
		b.producer.Close()
		b.producer.WaitClosed()
		if err := b.direct.Close(); err != nil {
			b.log.Warn("kafka writer close", "err", err)
		}
		b.log.Info("kafka disconnected")
	})
}
