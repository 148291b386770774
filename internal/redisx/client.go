package redisx

import (
	"context"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// Ping waits for redis within the retry budget. Callers may keep running
// without it; the cache degrades to store reads.
func Ping(ctx context.Context, rdb *redis.Client, p retry.Policy, log *slog.Logger) error {
	return retry.Do(ctx, p, func(ctx context.Context, attempt int) error {
		err := rdb.Ping(ctx).Err()
		if err != nil {
			log.Warn("redis not ready", "attempt", attempt, "err", err)
		}
		return err
	})
}
