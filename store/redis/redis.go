package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/hitcount/store"
)

// mgetBatch bounds the number of keys sent in one MGET or DEL.
const mgetBatch = 500

// Compile-time interface checks.
var (
	_ store.Store       = (*RedisStore)(nil)
	_ store.IncrExpirer = (*RedisStore)(nil)
	_ store.TTLer       = (*RedisStore)(nil)
)

// RedisStore is a Store backed by Redis. Keys map one-to-one onto Redis
// string keys holding integers, optionally behind a namespace prefix, and
// TTLs are native Redis expiries.
//
// MGet and Del batch keys into multi-key commands, so with Redis Cluster the
// counter identity should carry a hash tag (for example "{site_hits}").
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	scanCount int64
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithPrefix namespaces every key under prefix. Keys returns keys with the
// prefix stripped.
func WithPrefix(prefix string) Option {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithScanCount sets the COUNT hint used by Keys.
func WithScanCount(n int64) Option {
	return func(r *RedisStore) {
		if n > 0 {
			r.scanCount = n
		}
	}
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	r := &RedisStore{client: client, scanCount: 1000}
	for _, o := range opts {
		o(r)
	}
	return r
}

// incrExpireScript atomically increments a counter and refreshes its TTL.
// Returns the new count.
//
// KEYS[1] = counter key
// ARGV[1] = TTL in milliseconds, 0 to leave the expiry untouched
var incrExpireScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
    redis.call("PEXPIRE", KEYS[1], ttl)
end
return count
`)

// Incr atomically increments key.
func (r *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("hitcount/store/redis: incr: %w", err)
	}
	return n, nil
}

// IncrExpire increments key and refreshes its TTL in one script call.
func (r *RedisStore) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := incrExpireScript.Run(ctx, r.client, []string{r.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("hitcount/store/redis: incr expire: %w", err)
	}
	return n, nil
}

// Expire sets the TTL of key. Redis treats a non-positive TTL as deletion.
func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, r.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("hitcount/store/redis: expire: %w", err)
	}
	return nil
}

// Get returns the integer at key, or 0 when it does not exist.
func (r *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, r.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("hitcount/store/redis: get: %w", err)
	}
	return n, nil
}

// TTL returns the remaining lifetime of key using PTTL.
func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.PTTL(ctx, r.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("hitcount/store/redis: pttl: %w", err)
	}
	// go-redis passes the -1 (no expiry) and -2 (missing) replies through
	// as raw nanosecond values.
	switch d {
	case -1:
		return 0, nil
	case -2:
		return -1, nil
	}
	return d, nil
}

// MGet returns the integers at keys in order, in batches of MGET.
func (r *RedisStore) MGet(ctx context.Context, keys []string) ([]int64, error) {
	out := make([]int64, len(keys))

	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))

		full := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			full = append(full, r.key(k))
		}

		vals, err := r.client.MGet(ctx, full...).Result()
		if err != nil {
			return nil, fmt.Errorf("hitcount/store/redis: mget: %w", err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("hitcount/store/redis: parse %s: %w", keys[start+i], err)
			}
			out[start+i] = n
		}
	}
	return out, nil
}

// Del removes the given keys.
func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))

		full := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			full = append(full, r.key(k))
		}
		if err := r.client.Del(ctx, full...).Err(); err != nil {
			return fmt.Errorf("hitcount/store/redis: del: %w", err)
		}
	}
	return nil
}

// Keys enumerates keys starting with prefix using SCAN, never KEYS.
func (r *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(r.prefix+prefix) + "*"

	var out []string
	iter := r.client.Scan(ctx, 0, pattern, r.scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("hitcount/store/redis: scan: %w", err)
	}
	return out, nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
