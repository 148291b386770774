package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/apperr"
	"github.com/redis/go-redis/v9"
)

// fill writes KEYS[1] only if its generation is still the one the reader saw
// before loading from the store. An invalidation in between bumps the generation
// and the stale value is dropped.
var fillScript = redis.NewScript(`
local g = redis.call('GET', KEYS[2])
if not g then g = '0' end
if g ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Cache is a read-through JSON cache. Reads degrade to the loader when redis
// is down; invalidations fail with CacheUnavailable.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = TTLCache
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log}
}

// Load returns the cached value of key, or calls load and caches its result.
func Load[T any](ctx context.Context, c *Cache, key string, load func(ctx context.Context) (T, error)) (T, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			return v, nil
		}
		c.log.Warn("cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.log.Warn("cache read failed, reading store", "key", key, "err", err)
		return load(ctx)
	}

	gen, err := c.generation(ctx, key)
	if err != nil {
		c.log.Warn("cache read failed, reading store", "key", key, "err", err)
		return load(ctx)
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.fill(ctx, key, gen, v)
	return v, nil
}

// LoadMany resolves ids through per-id keys. Misses go to load in one call;
// ids load does not return are left out of the result.
func LoadMany[T any](ctx context.Context, c *Cache, ids []string, key func(id string) string,
	load func(ctx context.Context, ids []string) (map[string]T, error)) (map[string]T, error) {
	out := make(map[string]T, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, 0, 2*len(ids))
	for _, id := range ids {
		keys = append(keys, key(id))
	}
	for _, id := range ids {
		keys = append(keys, generationKey(key(id)))
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("cache read failed, reading store", "keys", len(ids), "err", err)
		return load(ctx, ids)
	}

	var missing []string
	gens := make(map[string]string)
	for i, id := range ids {
		if s, ok := vals[i].(string); ok {
			var v T
			if json.Unmarshal([]byte(s), &v) == nil {
				out[id] = v
				continue
			}
		}
		gen := "0"
		if s, ok := vals[len(ids)+i].(string); ok {
			gen = s
		}
		gens[id] = gen
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := load(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, v := range loaded {
		out[id] = v
		c.fill(ctx, key(id), gens[id], v)
	}
	return out, nil
}

// Invalidate drops keys and fences out fills that started before this call.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			g := generationKey(k)
			p.Incr(ctx, g)
			p.Expire(ctx, g, TTLGeneration)
		}
		p.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return apperr.CacheUnavailable("invalidate cache", err)
	}
	return nil
}

// Mutate invalidates keys, runs fn, then invalidates keys plus whatever fn returns.
// fn is not run when the first invalidation fails, so nothing is written that the
// cache could go on serving stale.
func (c *Cache) Mutate(ctx context.Context, keys []string, fn func(ctx context.Context) ([]string, error)) error {
	if err := c.Invalidate(ctx, keys...); err != nil {
		return err
	}
	more, err := fn(ctx)
	if err != nil {
		return err
	}
	all := append(append([]string(nil), keys...), more...)
	if err := c.Invalidate(ctx, all...); err != nil {
		c.log.Error("post-write invalidation failed", "keys", all, "err", err)
		return err
	}
	return nil
}

func (c *Cache) generation(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, generationKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *Cache) fill(ctx context.Context, key, gen string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache encode failed", "key", key, "err", err)
		return
	}
	ttl := strconv.FormatInt(c.ttl.Milliseconds(), 10)
	if err := fillScript.Run(ctx, c.rdb, []string{key, generationKey(key)}, gen, data, ttl).Err(); err != nil {
		c.log.Warn("cache fill failed", "key", key, "err", err)
	}
}
