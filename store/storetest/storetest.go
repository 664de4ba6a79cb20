// Package storetest provides a conformance suite for [store.Store]
// implementations.
package storetest

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ryhazerus/hitcount/store"
)

// Factory returns a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

// Run exercises the behaviour every Store must share.
func Run(t *testing.T, newStore Factory) {
	t.Run("Incr", func(t *testing.T) { testIncr(t, newStore(t)) })
	t.Run("IncrConcurrent", func(t *testing.T) { testIncrConcurrent(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("MGet", func(t *testing.T) { testMGet(t, newStore(t)) })
	t.Run("Del", func(t *testing.T) { testDel(t, newStore(t)) })
	t.Run("Keys", func(t *testing.T) { testKeys(t, newStore(t)) })
	t.Run("ExpireMissing", func(t *testing.T) { testExpireMissing(t, newStore(t)) })
	t.Run("IncrExpire", func(t *testing.T) { testIncrExpire(t, newStore(t)) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, newStore(t)) })
}

func testIncr(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		got, err := s.Incr(ctx, "c:5s:1000")
		if err != nil {
			t.Fatal(err)
		}
		if got != i {
			t.Errorf("incr %d: got %d, want %d", i, got, i)
		}
	}

	got, err := s.Get(ctx, "c:5s:1000")
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("get after 5 incr: got %d, want 5", got)
	}
}

func testIncrConcurrent(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers, perWorker = 8, 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := s.Incr(ctx, "c:h:0"); err != nil {
					t.Errorf("incr: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "c:h:0")
	if err != nil {
		t.Fatal(err)
	}
	if got != workers*perWorker {
		t.Errorf("concurrent incr: got %d, want %d", got, workers*perWorker)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	got, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("missing key: got %d, want 0", got)
	}
}

func testMGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	s.Incr(ctx, "a")
	s.Incr(ctx, "a")
	s.Incr(ctx, "c")

	got, err := s.MGet(ctx, []string{"a", "b", "c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{2, 0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("mget len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mget[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	empty, err := s.MGet(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("mget of no keys returned %d values", len(empty))
	}
}

func testDel(t *testing.T, s store.Store) {
	ctx := context.Background()
	s.Incr(ctx, "x")
	s.Incr(ctx, "y")

	if err := s.Del(ctx, "x", "y", "missing"); err != nil {
		t.Fatal(err)
	}
	if err := s.Del(ctx); err != nil {
		t.Fatalf("del of no keys: %v", err)
	}

	for _, k := range []string{"x", "y"} {
		got, _ := s.Get(ctx, k)
		if got != 0 {
			t.Errorf("after del %s: got %d, want 0", k, got)
		}
	}

	// Recreated from zero.
	got, _ := s.Incr(ctx, "x")
	if got != 1 {
		t.Errorf("incr after del: got %d, want 1", got)
	}
}

func testKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, k := range []string{"site:5s:0", "site:h:0", "sites:5s:0", "other:5s:0"} {
		if _, err := s.Incr(ctx, k); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Keys(ctx, "site:")
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	want := []string{"site:5s:0", "site:h:0"}
	if len(got) != len(want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keys = %v, want %v", got, want)
			break
		}
	}
}

func testExpireMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Expire(ctx, "ghost", time.Hour); err != nil {
		t.Fatalf("expire missing key: %v", err)
	}
	got, _ := s.Get(ctx, "ghost")
	if got != 0 {
		t.Errorf("expire created a key: got %d", got)
	}
}

func testIncrExpire(t *testing.T, s store.Store) {
	ie, ok := s.(store.IncrExpirer)
	if !ok {
		t.Skip("store does not implement IncrExpirer")
	}
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		got, err := ie.IncrExpire(ctx, "ttl:key", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if got != i {
			t.Errorf("incr expire %d: got %d, want %d", i, got, i)
		}
	}
	got, _ := ie.IncrExpire(ctx, "nottl:key", 0)
	if got != 1 {
		t.Errorf("incr expire without ttl: got %d, want 1", got)
	}
}

func testTTL(t *testing.T, s store.Store) {
	tl, ok := s.(store.TTLer)
	if !ok {
		t.Skip("store does not implement TTLer")
	}
	ctx := context.Background()

	got, err := tl.TTL(ctx, "absent")
	if err != nil {
		t.Fatal(err)
	}
	if got >= 0 {
		t.Errorf("ttl of absent key = %v, want negative", got)
	}

	s.Incr(ctx, "forever")
	got, err = tl.TTL(ctx, "forever")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("ttl without expiry = %v, want 0", got)
	}

	s.Incr(ctx, "hour")
	if err := s.Expire(ctx, "hour", time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err = tl.TTL(ctx, "hour")
	if err != nil {
		t.Fatal(err)
	}
	if got <= 0 || got > time.Hour {
		t.Errorf("ttl after expire(1h) = %v, want in (0, 1h]", got)
	}
}
