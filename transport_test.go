package hitcount

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ryhazerus/hitcount/store"
)

func TestTransportRecordsOutgoingRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := NewTracker(store.NewMemoryStore())
	c, err := tr.Register(Track{Name: "test_server", Pattern: "*"})
	if err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Transport: tr.Transport(nil)}
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL + "/hello")
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	}

	got, err := c.CountsInLastHour(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Errorf("last hour = %d, want 3", got)
	}
}

func TestTransportDoesNotFailOnStoreError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var reported []string
	s := &failingStore{Store: store.NewMemoryStore(), match: "broken:"}
	tr := NewTracker(s, WithOnRecordError(func(track Track, err error) {
		reported = append(reported, track.Name)
	}))
	if _, err := tr.Register(Track{Name: "broken", Pattern: "*"}); err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Transport: tr.Transport(nil)}
	resp, err := client.Get(srv.URL + "/test")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if len(reported) != 1 || reported[0] != "broken" {
		t.Errorf("reported = %v, want [broken]", reported)
	}
}

func TestMiddlewareRecordsInboundRequests(t *testing.T) {
	tr := NewTracker(store.NewMemoryStore())
	blog, err := tr.Register(Track{Name: "blog", Pattern: "example.com/blog/*"})
	if err != nil {
		t.Fatal(err)
	}
	site, err := tr.Register(Track{Name: "site", Pattern: "example.com/*"})
	if err != nil {
		t.Fatal(err)
	}

	h := tr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, target := range []string{
		"http://example.com/blog/first",
		"http://example.com/blog/second?utm=x",
		"http://example.com/pricing",
		"http://other.com/blog/first",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, http.StatusTeapot)
		}
	}

	ctx := context.Background()
	for _, tc := range []struct {
		c    *Counter
		want int64
	}{{blog, 2}, {site, 3}} {
		got, err := tc.c.CountsInLastHour(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("%s last hour = %d, want %d", tc.c.Name(), got, tc.want)
		}
	}
}
