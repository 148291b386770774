package outbox

import (
	"context"
	"log/slog"
	"time"
)

type RawEmitter interface {
	EmitRaw(ctx context.Context, topic string, key, value []byte) error
}

// Relay re-emits parked entries in id order until the broker takes them.
type Relay struct {
	log       *slog.Logger
	store     Store
	emitter   RawEmitter
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewRelay(log *slog.Logger, store Store, emitter RawEmitter, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{
		log:       log,
		store:     store,
		emitter:   emitter,
		batchSize: 100,
		interval:  interval,
		lease:     30 * time.Second,
	}
}

func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	r.log.Info("outbox relay started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox relay stopping")
			return
		case <-t.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox relay batch failed", "err", err)
			}
		}
	}
}

// RunOnce relays one batch and reports how many entries were sent. Once an
// entry fails, later entries with the same key are skipped so the decrease and
// increase of one order never swap.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	entries, err := r.store.LockBatch(ctx, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	blocked := map[string]bool{}
	sent := make([]int64, 0, len(entries))
	for _, e := range entries {
		if blocked[string(e.Key)] {
			// tetap ter-lease, diambil lagi setelah lease habis
			continue
		}
		if err := r.emitter.EmitRaw(ctx, e.Topic, e.Key, e.Value); err != nil {
			blocked[string(e.Key)] = true
			r.log.Warn("outbox re-emit failed", "id", e.ID, "topic", e.Topic, "attempt", e.Attempts+1, "err", err)
			if err := r.store.MarkFailed(ctx, e.ID, err.Error()); err != nil {
				r.log.Error("outbox mark failed", "id", e.ID, "err", err)
			}
			continue
		}
		sent = append(sent, e.ID)
	}
	if err := r.store.MarkSent(ctx, sent); err != nil {
		return 0, err
	}
	if len(sent) > 0 {
		r.log.Info("outbox relayed", "sent", len(sent), "locked", len(entries))
	}
	return len(sent), nil
}
