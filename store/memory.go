package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type entry struct {
	count     int64
	expiresAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Compile-time interface checks.
var (
	_ Store       = (*MemoryStore)(nil)
	_ IncrExpirer = (*MemoryStore)(nil)
	_ TTLer       = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Keys are lost on process restart.
// Expired keys are dropped lazily when they are touched or listed.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces the clock used for TTL bookkeeping.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		m.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// live returns the entry for key, dropping it if it has expired.
// The caller must hold m.mu.
func (m *MemoryStore) live(key string, now time.Time) (*entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

// Incr atomically adds one to the value at key.
func (m *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key, m.now())
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// IncrExpire increments key and refreshes its TTL under one lock.
func (m *MemoryStore) IncrExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.live(key, now)
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.count++
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e.count, nil
}

// Expire sets the TTL of key. A non-positive ttl removes the key, matching
// Redis semantics.
func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.live(key, now)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(m.entries, key)
		return nil
	}
	e.expiresAt = now.Add(ttl)
	return nil
}

// Get returns the value at key, or 0 if it is absent or expired.
func (m *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(key, m.now())
	if !ok {
		return 0, nil
	}
	return e.count, nil
}

// TTL returns the remaining lifetime of key.
func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.live(key, now)
	if !ok {
		return -1, nil
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

// MGet returns the values at keys in order.
func (m *MemoryStore) MGet(_ context.Context, keys []string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]int64, len(keys))
	for i, k := range keys {
		if e, ok := m.live(k, now); ok {
			out[i] = e.count
		}
	}
	return out, nil
}

// Del removes the given keys.
func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Keys lists the live keys starting with prefix.
func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []string
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// put overwrites the value at key. A positive ttl replaces the expiry;
// otherwise a live key keeps its current expiry. Used by TieredStore to
// mirror and backfill values from its persistent store.
func (m *MemoryStore) put(key string, count int64, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.live(key, now)
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.count = count
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
