package orders

import (
	"context"
	"time"
)

// RunSweeper completes Pending orders every interval until ctx is done.
// Runs are independent; a failed run is logged and the next tick tries again.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	s.Log.Info("order sweeper started", "interval", every.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.CompletePending(ctx); err != nil && ctx.Err() == nil {
				s.Log.Error("order sweep failed", "err", err)
			}
		}
	}
}
