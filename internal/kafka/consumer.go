package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       MessageReader
	log     *slog.Logger
	workers int
	retry   retry.Policy
	// jeda sebelum putaran retry berikutnya untuk pesan yang masih gagal sementara
	hold time.Duration
}

func NewReader(brokers []string, group string, topics ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
}

func NewConsumer(r MessageReader, log *slog.Logger, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:       r,
		log:     log,
		workers: workers,
		retry:   retry.Exponential(3, 200*time.Millisecond, 2*time.Second),
		hold:    5 * time.Second,
	}
}

// Start blocks until ctx is done or the reader fails. Messages of one partition always go
// to the same worker, so per-partition order and commit order are kept.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	queues := make([]chan kafka.Message, c.workers)
	done := make(chan struct{}, c.workers)
	for i := range queues {
		queues[i] = make(chan kafka.Message, 128)
		go func(jobs <-chan kafka.Message) {
			defer func() { done <- struct{}{} }()
			for m := range jobs {
				c.process(ctx, h, m)
			}
		}(queues[i])
	}
	stop := func() {
		for _, q := range queues {
			close(q)
		}
		for range queues {
			<-done
		}
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case queues[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}

// process commits a message once it succeeded or was rejected for good. A transient
// failure is never committed: the message is retried until it succeeds or ctx ends,
// which blocks its partition and keeps later offsets from being committed past it.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) {
	for round := 1; ; round++ {
		err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
			err := h(ctx, m)
			if err != nil && !Retryable(err) {
				return retry.Permanent(err)
			}
			return err
		})
		switch {
		case ctx.Err() != nil:
			// shutdown: leave uncommitted, will be redelivered
			return
		case err == nil:
		case !Retryable(err):
			c.log.Warn("message rejected", "topic", m.Topic, "offset", m.Offset, "err", err)
		default:
			c.log.Error("message held for redelivery", "topic", m.Topic, "offset", m.Offset, "round", round, "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.hold):
			}
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "topic", m.Topic, "offset", m.Offset, "err", err)
		}
		return
	}
}

// Retryable reports whether redelivering the same message could succeed.
func Retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindServiceUnavailable, apperr.KindCacheUnavailable:
		return true
	}
	return false
}
