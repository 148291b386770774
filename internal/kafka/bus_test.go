package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

// bus is an in-memory stand-in for the cluster.
type bus struct {
	mu        sync.Mutex
	written   []kafka.Message
	topics    map[string]chan kafka.Message
	onWrite   func(m kafka.Message)
	failWrite error
}

func newBus() *bus {
	return &bus{topics: make(map[string]chan kafka.Message)}
}

func (b *bus) topic(name string) chan kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan kafka.Message, 64)
		b.topics[name] = ch
	}
	return ch
}

func (b *bus) messages(topic string) []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []kafka.Message
	for _, m := range b.written {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (b *bus) writer() MessageWriter { return &busWriter{b: b} }

func (b *bus) reader(topic string) MessageReader { return &busReader{ch: b.topic(topic)} }

type busWriter struct{ b *bus }

func (w *busWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.b.mu.Lock()
	err := w.b.failWrite
	if err == nil {
		w.b.written = append(w.b.written, msgs...)
	}
	hook := w.b.onWrite
	w.b.mu.Unlock()
	if err != nil {
		return err
	}
	for _, m := range msgs {
		select {
		case w.b.topic(m.Topic) <- m:
		default:
		}
		if hook != nil {
			go hook(m)
		}
	}
	return nil
}

func (w *busWriter) Close() error { return nil }

type busReader struct {
	ch chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
}

func (r *busReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.ch:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *busReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *busReader) Close() error { return nil }

func (b *bus) failWith(err error) {
	b.mu.Lock()
	b.failWrite = err
	b.mu.Unlock()
}
