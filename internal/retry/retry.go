package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy is a bounded retry budget. Multiplier <= 1 means fixed backoff.
type Policy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Multiplier float64
}

func Fixed(attempts int, backoff time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: backoff, MaxBackoff: backoff, Multiplier: 1}
}

func Exponential(attempts int, base, max time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: base, MaxBackoff: max, Multiplier: 2}
}

// Do runs fn until it succeeds, the budget is spent or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	_, err := Value(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	})
	return err
}

func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := p.Backoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		var stop *permanentError
		if errors.As(err, &stop) {
			return zero, stop.err
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(backoff):
		}
		if p.Multiplier > 1 {
			backoff = time.Duration(float64(backoff) * p.Multiplier)
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}
	return zero, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Permanent stops Do/Value immediately and returns err unwrapped.
func Permanent(err error) error { return &permanentError{err: err} }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }
