package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryhazerus/hitcount"
	"github.com/ryhazerus/hitcount/store"
)

var testNow = time.Date(2024, 5, 14, 10, 22, 33, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(store.WithMemoryClock(func() time.Time { return testNow }))
	clock := func() time.Time { return testNow }
	s := New(st, append([]Option{WithClock(clock), WithCounterOptions(hitcount.WithLifetimeTotal())}, opts...)...)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, target string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHitAndSummary(t *testing.T) {
	srv, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		resp := do(t, http.MethodPost, srv.URL+"/counters/site_hits/hits")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	resp := do(t, http.MethodPost, srv.URL+"/counters/site_hits/hits?ts="+testNow.Add(-2*time.Hour).Format(time.RFC3339))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/counters/site_hits")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	got := decode[summaryResponse](t, resp)
	assert.Equal(t, summaryResponse{
		Name:            "site_hits",
		Current:         3,
		LastFiveSeconds: 3,
		LastHour:        3,
		LastDay:         4,
		LastWeek:        4,
		LastMonth:       4,
		Total:           4,
	}, got)
}

func TestBucket(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, http.MethodPost, srv.URL+"/counters/site_hits/hits?ts=1000")
	do(t, http.MethodPost, srv.URL+"/counters/site_hits/hits?ts=1003")

	resp := do(t, http.MethodGet, srv.URL+"/counters/site_hits/buckets/5s?ts=1004")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[bucketResponse](t, resp)
	assert.Equal(t, "site_hits:5s:1000", got.Key)
	assert.Equal(t, "five_seconds", got.Granularity)
	assert.Equal(t, int64(2), got.Count)
	assert.True(t, got.Start.Equal(time.Unix(1000, 0)))

	resp = do(t, http.MethodGet, srv.URL+"/counters/site_hits/buckets/hour?ts=1")
	assert.Equal(t, int64(2), decode[bucketResponse](t, resp).Count)

	resp = do(t, http.MethodGet, srv.URL+"/counters/site_hits/buckets/fortnight")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t)

	do(t, http.MethodPost, srv.URL+"/counters/orders/hits")
	do(t, http.MethodPost, srv.URL+"/counters/orders/hits?ts="+testNow.Add(-time.Hour).Format(time.RFC3339))

	from := testNow.Add(-2 * time.Hour).Format(time.RFC3339)
	resp := do(t, http.MethodGet, srv.URL+"/counters/orders/series/hour?from="+from)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got := decode[seriesResponse](t, resp)
	require.Len(t, got.Points, 3)
	assert.Equal(t, []int64{0, 1, 1}, []int64{got.Points[0].Count, got.Points[1].Count, got.Points[2].Count})

	resp = do(t, http.MethodGet, srv.URL+"/counters/orders/series/hour")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/counters/orders/series/hour?from=2000&to=1000")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_span", decode[errorResponse](t, resp).Error.Code)
}

func TestResetAndDelete(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	do(t, http.MethodPost, srv.URL+"/counters/a/hits")
	do(t, http.MethodPost, srv.URL+"/counters/b/hits")

	resp := do(t, http.MethodPost, srv.URL+"/counters/a/reset")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	keys, err := st.Keys(ctx, "a:")
	require.NoError(t, err)
	assert.Empty(t, keys)

	resp = do(t, http.MethodDelete, srv.URL+"/counters/b")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	keys, err = st.Keys(ctx, "b:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/counters/bad*name/hits")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_counter_name", decode[errorResponse](t, resp).Error.Code)

	resp = do(t, http.MethodPost, srv.URL+"/counters/ok/hits?ts=yesterday")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[errorResponse](t, resp)
	assert.Equal(t, "invalid_timestamp", body.Error.Code)
	assert.Equal(t, "ts", body.Error.Param)

	// One second before 0001-01-01T00:00:00Z.
	resp = do(t, http.MethodPost, srv.URL+"/counters/ok/hits?ts=-62135596801")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/counters/ok/hits?ts=-5")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "instants before 1970 are accepted")

	resp = do(t, http.MethodGet, srv.URL+"/nowhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type downStore struct{ store.Store }

func (downStore) Incr(context.Context, string) (int64, error) { return 0, errors.New("connection refused") }

func (downStore) MGet(context.Context, []string) ([]int64, error) {
	return nil, errors.New("connection refused")
}

func (downStore) Get(context.Context, string) (int64, error) { return 0, errors.New("connection refused") }

func TestStoreFailureIsUnavailable(t *testing.T) {
	s := New(downStore{store.NewMemoryStore()}, WithHealthcheck(func(context.Context) error {
		return errors.New("ping failed")
	}))
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodPost, srv.URL+"/counters/x/hits")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "store_unavailable", decode[errorResponse](t, resp).Error.Code)

	resp = do(t, http.MethodGet, srv.URL+"/counters/x")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthzAndTracks(t *testing.T) {
	st := store.NewMemoryStore()
	tracker := hitcount.NewTracker(st)
	_, err := tracker.Register(hitcount.Track{Name: "blog", Pattern: "example.com/blog/*"})
	require.NoError(t, err)
	_, err = tracker.Record(context.Background(), "https://example.com/blog/post")
	require.NoError(t, err)

	srv := httptest.NewServer(New(st, WithTracker(tracker)).Routes())
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/record?url="+url.QueryEscape("https://example.com/blog/other"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, decode[recordResponse](t, resp).Matched)

	resp = do(t, http.MethodPost, srv.URL+"/record?url="+url.QueryEscape("https://example.com/about"))
	assert.Equal(t, 0, decode[recordResponse](t, resp).Matched)

	resp = do(t, http.MethodPost, srv.URL+"/record")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/tracks")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[[]hitcount.CounterStatus](t, resp)
	require.Len(t, snap, 1)
	assert.Equal(t, "blog", snap[0].Track.Name)
	assert.Equal(t, int64(2), snap[0].LastDay)
}

func TestToAPIError(t *testing.T) {
	err := &hitcount.IncrementError{
		Counter:   "x",
		Attempted: 5,
		Failed:    []*hitcount.BucketError{{Key: "x:h:0", Err: hitcount.ErrStoreUnavailable}},
	}
	assert.Equal(t, http.StatusServiceUnavailable, toAPIError(err).Status)
	assert.Equal(t, http.StatusInternalServerError, toAPIError(errors.New("boom")).Status)
	assert.True(t, strings.HasPrefix(toAPIError(hitcount.ErrInvalidSpan).Message, "hitcount"))
}
