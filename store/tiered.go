package store

import (
	"context"
	"time"
)

// DefaultCacheTTL bounds how long a value backfilled from the persistent
// store is served from memory.
const DefaultCacheTTL = time.Minute

// Compile-time interface checks.
var (
	_ Store       = (*TieredStore)(nil)
	_ IncrExpirer = (*TieredStore)(nil)
)

// TieredStore wraps an in-memory store (fast path) with a persistent backend
// (durable path). Writes go to the persistent store first and are mirrored
// into memory; reads check memory first and fall back to the persistent
// store on a miss.
//
// A value is never cached past the key's own expiry. Values written by
// other processes sharing the persistent store may be served stale from
// memory for up to the cache TTL.
type TieredStore struct {
	memory     *MemoryStore
	persistent Store
	cacheTTL   time.Duration
}

// NewTieredStore creates a TieredStore backed by the given persistent store.
// An internal MemoryStore is created automatically with opts. A non-positive
// cacheTTL selects DefaultCacheTTL.
//
// Values are cached only when the persistent store implements TTLer or the
// TTL is known from the write, so a cached value never outlives its key.
func NewTieredStore(persistent Store, cacheTTL time.Duration, opts ...MemoryOption) *TieredStore {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &TieredStore{
		memory:     NewMemoryStore(opts...),
		persistent: persistent,
		cacheTTL:   cacheTTL,
	}
}

// Incr increments in the persistent backend, which is authoritative for the
// returned value, and mirrors it into memory.
func (t *TieredStore) Incr(ctx context.Context, key string) (int64, error) {
	count, err := t.persistent.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	t.backfill(ctx, key, count)
	return count, nil
}

// IncrExpire increments and refreshes the TTL in the persistent backend,
// atomically when it supports IncrExpirer.
func (t *TieredStore) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var (
		count int64
		err   error
	)
	if ie, ok := t.persistent.(IncrExpirer); ok {
		count, err = ie.IncrExpire(ctx, key, ttl)
	} else {
		count, err = t.persistent.Incr(ctx, key)
		if err == nil && ttl > 0 {
			err = t.persistent.Expire(ctx, key, ttl)
		}
	}
	if err != nil {
		return 0, err
	}

	if ttl > 0 {
		t.memory.put(key, count, t.cacheFor(ttl))
	} else {
		t.backfill(ctx, key, count)
	}
	return count, nil
}

// Expire applies the TTL to both stores.
func (t *TieredStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := t.persistent.Expire(ctx, key, ttl); err != nil {
		return err
	}
	if ttl <= 0 {
		return t.memory.Del(ctx, key)
	}
	return t.memory.Expire(ctx, key, t.cacheFor(ttl))
}

// Get reads from memory first. On a miss (zero value), it falls back to the
// persistent store and backfills memory.
func (t *TieredStore) Get(ctx context.Context, key string) (int64, error) {
	count, err := t.memory.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return count, nil
	}

	count, err = t.persistent.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		t.backfill(ctx, key, count)
	}
	return count, nil
}

// MGet serves what it can from memory and fetches the rest from the
// persistent store in one call.
func (t *TieredStore) MGet(ctx context.Context, keys []string) ([]int64, error) {
	out, err := t.memory.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	var (
		missKeys []string
		missIdx  []int
	)
	for i, v := range out {
		if v == 0 {
			missKeys = append(missKeys, keys[i])
			missIdx = append(missIdx, i)
		}
	}
	if len(missKeys) == 0 {
		return out, nil
	}

	vals, err := t.persistent.MGet(ctx, missKeys)
	if err != nil {
		return nil, err
	}
	for j, v := range vals {
		out[missIdx[j]] = v
		if v > 0 {
			t.backfill(ctx, missKeys[j], v)
		}
	}
	return out, nil
}

// Del removes the keys from both stores.
func (t *TieredStore) Del(ctx context.Context, keys ...string) error {
	if err := t.persistent.Del(ctx, keys...); err != nil {
		return err
	}
	return t.memory.Del(ctx, keys...)
}

// Keys lists keys from the persistent store, which holds the full set.
func (t *TieredStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return t.persistent.Keys(ctx, prefix)
}

// backfill caches a value read from or written to the persistent store for
// no longer than the key has left to live there. Without a TTLer the
// remaining lifetime is unknown and nothing is cached.
func (t *TieredStore) backfill(ctx context.Context, key string, count int64) {
	tl, ok := t.persistent.(TTLer)
	if !ok {
		t.memory.Del(ctx, key)
		return
	}
	ttl, err := tl.TTL(ctx, key)
	if err != nil || ttl < 0 {
		t.memory.Del(ctx, key)
		return
	}
	t.memory.put(key, count, t.cacheFor(ttl))
}

// cacheFor caps how long memory may serve a value whose real TTL is ttl.
func (t *TieredStore) cacheFor(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return t.cacheTTL
	}
	return min(ttl, t.cacheTTL)
}

// Close closes the persistent backend. The in-memory store needs no cleanup.
func (t *TieredStore) Close() error {
	return t.persistent.Close()
}
