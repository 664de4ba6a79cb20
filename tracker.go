package hitcount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/ryhazerus/hitcount/store"
)

// Track names a counter and the URLs that count as hits on it.
type Track struct {
	Name    string // counter identity, e.g. "site_hits"
	Pattern string // URL match pattern, e.g. "example.com/blog/*"
}

type tracked struct {
	Track
	counter *Counter
}

// Tracker routes requests to counters by URL pattern. Every registered
// track whose pattern matches a request gets one hit. All counters share the
// tracker's store.
type Tracker struct {
	mu      sync.RWMutex
	tracks  []tracked
	store   store.Store
	opts    []Option
	logger  *slog.Logger
	onError func(Track, error)
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithCounterOptions applies opts to every counter the tracker creates.
func WithCounterOptions(opts ...Option) TrackerOption {
	return func(t *Tracker) {
		t.opts = append(t.opts, opts...)
	}
}

// WithTrackerLogger sets the logger used for failures recorded by the
// middleware and transport, which cannot return errors to a caller.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithOnRecordError sets a callback for failed increments made by the
// middleware and transport. It replaces logging.
func WithOnRecordError(fn func(Track, error)) TrackerOption {
	return func(t *Tracker) {
		t.onError = fn
	}
}

// NewTracker creates a Tracker over s.
func NewTracker(s store.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: s, logger: slog.Default()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Register adds a track and returns its counter.
func (t *Tracker) Register(tr Track) (*Counter, error) {
	c, err := New(tr.Name, t.store, t.opts...)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.tracks {
		if existing.Name == tr.Name {
			return nil, fmt.Errorf("hitcount: track %q already registered", tr.Name)
		}
	}
	t.tracks = append(t.tracks, tracked{Track: tr, counter: c})
	return c, nil
}

// Counter returns the counter of the named track.
func (t *Tracker) Counter(name string) (*Counter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tr := range t.tracks {
		if tr.Name == name {
			return tr.counter, true
		}
	}
	return nil, false
}

// Tracks returns a copy of all registered tracks.
func (t *Tracker) Tracks() []Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = tr.Track
	}
	return out
}

// Record counts a hit on every track matching rawURL. It returns how many
// tracks matched and the joined increment errors, if any.
func (t *Tracker) Record(ctx context.Context, rawURL string) (int, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("hitcount: parse url: %w", err)
	}

	matched, failures := t.record(ctx, u.Host, u.Path)
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f.err
	}
	return matched, errors.Join(errs...)
}

type recordFailure struct {
	track Track
	err   error
}

func (t *Tracker) record(ctx context.Context, host, path string) (int, []recordFailure) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var (
		matched  int
		failures []recordFailure
	)
	for _, tr := range t.tracks {
		if !matchHostPath(host, path, tr.Pattern) {
			continue
		}
		matched++
		if err := tr.counter.Increment(ctx); err != nil {
			failures = append(failures, recordFailure{track: tr.Track, err: err})
		}
	}
	return matched, failures
}

// observe records a hit and reports failures out of band.
func (t *Tracker) observe(ctx context.Context, host, path string) {
	_, failures := t.record(ctx, host, path)
	for _, f := range failures {
		if t.onError != nil {
			t.onError(f.track, f.err)
			continue
		}
		t.logger.LogAttrs(ctx, slog.LevelWarn, "hitcount: record failed",
			slog.String("counter", f.track.Name),
			slog.String("host", host),
			slog.String("path", path),
			slog.Any("error", f.err),
		)
	}
}

// Middleware wraps next so every inbound request is recorded. Store
// failures never fail the request.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return &middleware{tracker: t, next: next}
}

// Transport wraps an http.RoundTripper so that every outgoing request made
// through it is recorded.
func (t *Tracker) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{tracker: t, base: base}
}

// CounterStatus holds a point-in-time reading of one track's counter.
type CounterStatus struct {
	Track    Track `json:"track"`
	Current  int64 `json:"current"`
	LastHour int64 `json:"last_hour"`
	LastDay  int64 `json:"last_day"`
}

// Snapshot reads the current, last-hour and last-day counts of every track.
func (t *Tracker) Snapshot(ctx context.Context) ([]CounterStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]CounterStatus, 0, len(t.tracks))
	for _, tr := range t.tracks {
		st := CounterStatus{Track: tr.Track}
		var err error
		if st.Current, err = tr.counter.CurrentCount(ctx); err != nil {
			return nil, fmt.Errorf("hitcount: snapshot %s: %w", tr.Name, err)
		}
		if st.LastHour, err = tr.counter.CountsInLastHour(ctx); err != nil {
			return nil, fmt.Errorf("hitcount: snapshot %s: %w", tr.Name, err)
		}
		if st.LastDay, err = tr.counter.CountsInLastDay(ctx); err != nil {
			return nil, fmt.Errorf("hitcount: snapshot %s: %w", tr.Name, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Close releases resources held by the tracker's store.
func (t *Tracker) Close() error {
	return t.store.Close()
}
