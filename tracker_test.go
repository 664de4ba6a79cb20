package hitcount

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryhazerus/hitcount/store"
)

func TestTrackerRegister(t *testing.T) {
	tr := NewTracker(store.NewMemoryStore())

	c, err := tr.Register(Track{Name: "site_hits", Pattern: "example.com/*"})
	require.NoError(t, err)
	assert.Equal(t, "site_hits", c.Name())

	_, err = tr.Register(Track{Name: "site_hits", Pattern: "other.com/*"})
	assert.Error(t, err, "duplicate name")

	_, err = tr.Register(Track{Name: "bad:name", Pattern: "*"})
	assert.ErrorIs(t, err, ErrInvalidIdentity)

	got, ok := tr.Counter("site_hits")
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = tr.Counter("missing")
	assert.False(t, ok)

	assert.Equal(t, []Track{{Name: "site_hits", Pattern: "example.com/*"}}, tr.Tracks())
}

func TestTrackerRecord(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2024, 5, 14, 10, 22, 33, 0, time.UTC))
	tr := NewTracker(
		store.NewMemoryStore(store.WithMemoryClock(clock.Now)),
		WithCounterOptions(WithClock(clock.Now), WithLifetimeTotal()),
	)

	api, err := tr.Register(Track{Name: "api", Pattern: "api.example.com/*"})
	require.NoError(t, err)
	users, err := tr.Register(Track{Name: "users", Pattern: "api.example.com/v1/users/*"})
	require.NoError(t, err)

	n, err := tr.Record(ctx, "https://api.example.com/v1/users/42")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tr.Record(ctx, "https://api.example.com/v1/orders")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tr.Record(ctx, "https://elsewhere.com/")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = tr.Record(ctx, "://bad")
	assert.Error(t, err)

	total, err := api.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "counter options reach registered counters")

	cur, err := users.CurrentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cur)
}

func TestTrackerRecordJoinsErrors(t *testing.T) {
	s := &failingStore{Store: store.NewMemoryStore(), match: ":d:"}
	tr := NewTracker(s)
	_, err := tr.Register(Track{Name: "a", Pattern: "*"})
	require.NoError(t, err)
	_, err = tr.Register(Track{Name: "b", Pattern: "*"})
	require.NoError(t, err)

	n, err := tr.Record(context.Background(), "http://example.com/")
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	var incErr *IncrementError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, "a", incErr.Counter)
}

func TestTrackerLogsObservedFailures(t *testing.T) {
	var buf bytes.Buffer
	s := &failingStore{Store: store.NewMemoryStore(), match: "down:"}
	tr := NewTracker(s, WithTrackerLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	_, err := tr.Register(Track{Name: "down", Pattern: "*"})
	require.NoError(t, err)

	tr.observe(context.Background(), "example.com", "/x")
	assert.Contains(t, buf.String(), "record failed")
	assert.Contains(t, buf.String(), "counter=down")
}

func TestTrackerSnapshot(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2024, 5, 14, 10, 22, 33, 0, time.UTC))
	tr := NewTracker(
		store.NewMemoryStore(store.WithMemoryClock(clock.Now)),
		WithCounterOptions(WithClock(clock.Now)),
	)
	_, err := tr.Register(Track{Name: "blog", Pattern: "example.com/blog/*"})
	require.NoError(t, err)
	_, err = tr.Register(Track{Name: "docs", Pattern: "example.com/docs/*"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := tr.Record(ctx, "http://example.com/blog/post")
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Hour)
	_, err = tr.Record(ctx, "http://example.com/blog/post")
	require.NoError(t, err)

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 2)

	assert.Equal(t, CounterStatus{
		Track:    Track{Name: "blog", Pattern: "example.com/blog/*"},
		Current:  1,
		LastHour: 1,
		LastDay:  4,
	}, snap[0])
	assert.Equal(t, "docs", snap[1].Track.Name)
	assert.Zero(t, snap[1].LastDay)

	require.NoError(t, tr.Close())
}
