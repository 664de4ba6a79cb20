package store

import (
	"context"
	"time"
)

// Store is the key-value contract counters are built on. Every method must be
// safe for concurrent use. Missing or expired keys read as zero and are never
// an error.
type Store interface {
	// Incr atomically adds one to the integer at key, creating it at zero
	// first if needed, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the time to live of key. It is a no-op when the key does
	// not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the integer at key, or 0 when the key is absent.
	Get(ctx context.Context, key string) (int64, error)

	// MGet returns the integers at keys in order, with 0 for absent keys.
	MGet(ctx context.Context, keys []string) ([]int64, error)

	// Del removes the given keys. Absent keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Keys lists every live key starting with prefix, in no particular order.
	// It is meant for maintenance operations, not hot paths.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// TTLer is implemented by stores that can report how long a key has left
// to live. TTL returns 0 for a key without expiry and a negative duration
// for an absent or expired key.
type TTLer interface {
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// IncrExpirer is implemented by stores that can increment a key and refresh
// its TTL in a single atomic round trip. A zero ttl leaves the key's expiry
// untouched.
type IncrExpirer interface {
	IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
