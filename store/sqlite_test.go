package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ryhazerus/hitcount/store"
	"github.com/ryhazerus/hitcount/store/storetest"
)

func newTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestSQLiteStore(t)
	})
}

func TestSQLiteStoreExpiry(t *testing.T) {
	s := newTestSQLiteStore(t)
	clock := newFakeClock()
	store.SetSQLiteClock(s, clock.Now)
	ctx := context.Background()

	s.IncrExpire(ctx, "key", time.Minute)
	s.IncrExpire(ctx, "key", time.Minute)

	clock.Advance(30 * time.Second)
	got, _ := s.Get(ctx, "key")
	if got != 2 {
		t.Errorf("before expiry: got %d, want 2", got)
	}

	clock.Advance(30 * time.Second)
	got, _ = s.Get(ctx, "key")
	if got != 0 {
		t.Errorf("after expiry: got %d, want 0", got)
	}

	got, _ = s.Incr(ctx, "key")
	if got != 1 {
		t.Errorf("incr after expiry: got %d, want 1", got)
	}
}

func TestSQLiteStoreExpireOnlyTouchesLiveKeys(t *testing.T) {
	s := newTestSQLiteStore(t)
	clock := newFakeClock()
	store.SetSQLiteClock(s, clock.Now)
	ctx := context.Background()

	s.IncrExpire(ctx, "key", time.Second)
	clock.Advance(2 * time.Second)

	// Reviving an expired row through Expire would resurrect stale counts.
	if err := s.Expire(ctx, "key", time.Hour); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, "key")
	if got != 0 {
		t.Errorf("expired key revived: got %d, want 0", got)
	}
}

func TestSQLiteStorePurgeExpired(t *testing.T) {
	s := newTestSQLiteStore(t)
	clock := newFakeClock()
	store.SetSQLiteClock(s, clock.Now)
	ctx := context.Background()

	s.IncrExpire(ctx, "short", time.Second)
	s.IncrExpire(ctx, "long", time.Hour)
	s.Incr(ctx, "forever")
	clock.Advance(time.Minute)

	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	keys, _ := s.Keys(ctx, "")
	if len(keys) != 2 {
		t.Errorf("keys after purge = %v, want 2 keys", keys)
	}
}

func TestSQLiteStoreMGetLargeBatch(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	keys := make([]string, 1200)
	for i := range keys {
		keys[i] = fmt.Sprintf("c:5s:%d", i*5)
		if i%3 == 0 {
			s.Incr(ctx, keys[i])
		}
	}

	got, err := s.MGet(ctx, keys)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, v := range got {
		sum += v
	}
	if sum != 400 {
		t.Errorf("sum over batches = %d, want 400", sum)
	}

	if err := s.Del(ctx, keys...); err != nil {
		t.Fatal(err)
	}
	left, _ := s.Keys(ctx, "c:")
	if len(left) != 0 {
		t.Errorf("%d keys left after batched del", len(left))
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hits.db")
	ctx := context.Background()

	s1, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s1.Incr(ctx, "site:m:1704067200")
	s1.Incr(ctx, "site:m:1704067200")
	s1.Close()

	s2, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	got, _ := s2.Get(ctx, "site:m:1704067200")
	if got != 2 {
		t.Errorf("after reopen: got %d, want 2", got)
	}
}
