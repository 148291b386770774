package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	ErrProducerClosed = errors.New("producer closed")
	ErrBufferFull     = errors.New("producer buffer full")
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FailureFunc receives messages the producer could not deliver.
type FailureFunc func(m kafka.Message, err error)

// Producer is a fire-and-forget writer: Publish never blocks, delivery happens on a
// background loop and failures are reported through the hook set with SetOnFailure.
type Producer struct {
	w            MessageWriter
	log          *slog.Logger
	writeTimeout time.Duration

	mu        sync.RWMutex
	closed    bool
	inbox     chan kafka.Message
	closeCh   chan struct{}
	closeOnce sync.Once

	hookMu    sync.Mutex
	onFailure FailureFunc
}

// kafka-go waits up to BatchTimeout (1s by default) for a batch to fill; a
// request/reply round trip can't afford that.
const batchTimeout = 10 * time.Millisecond

// NewWriter returns a synchronous writer: WriteMessages returns once the broker acked.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewAsyncWriter returns a writer whose WriteMessages only enqueues; done is called
// with every batch once the broker answered.
func NewAsyncWriter(brokers []string, done func(msgs []kafka.Message, err error)) *kafka.Writer {
	w := NewWriter(brokers)
	w.Async = true
	w.Completion = done
	return w
}

func NewProducer(w MessageWriter, log *slog.Logger, buf int) *Producer {
	return &Producer{
		w:            w,
		log:          log,
		writeTimeout: 10 * time.Second,
		inbox:        make(chan kafka.Message, buf),
		closeCh:      make(chan struct{}),
	}
}

// NewAsyncProducer builds the producer and its writer together so the writer's
// completion callback reports into this producer.
func NewAsyncProducer(newWriter func(done func(msgs []kafka.Message, err error)) MessageWriter, log *slog.Logger, buf int) *Producer {
	p := NewProducer(nil, log, buf)
	p.w = newWriter(p.Completed)
	return p
}

// SetOnFailure may be called at any time, also while messages are in flight.
func (p *Producer) SetOnFailure(f FailureFunc) {
	p.hookMu.Lock()
	p.onFailure = f
	p.hookMu.Unlock()
}

func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
			err := p.w.WriteMessages(ctx, m)
			cancel()
			if err != nil {
				p.fail(m, err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn("producer writer close", "err", err)
		}
	}()
}

func (p *Producer) Publish(m kafka.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	select {
	case p.inbox <- m:
		return nil
	default:
		return ErrBufferFull
	}
}

// Completed is the delivery callback of an async writer.
func (p *Producer) Completed(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.fail(m, err)
	}
}

// Close flushes what is queued and stops the loop. Safe to call more than once.
func (p *Producer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) WaitClosed() { <-p.closeCh }

func (p *Producer) fail(m kafka.Message, err error) {
	p.log.Error("kafka publish failed", "topic", m.Topic, "key", string(m.Key), "err", err)
	p.hookMu.Lock()
	f := p.onFailure
	p.hookMu.Unlock()
	if f != nil {
		f(m, err)
	}
}
