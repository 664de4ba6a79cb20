// Package api exposes counters over HTTP.
//
//	POST   /counters/{name}/hits                  record a hit (?ts= to back-date)
//	GET    /counters/{name}                       current and rolling-window counts
//	GET    /counters/{name}/buckets/{granularity} one calendar bucket (?ts=)
//	GET    /counters/{name}/series/{granularity}  consecutive buckets (?from=&to=)
//	POST   /counters/{name}/reset                 zero every bucket
//	DELETE /counters/{name}                       remove the counter's keys
//	POST   /record                                count ?url= against tracked patterns
//	GET    /tracks                                snapshot of tracked URL patterns
//	GET    /healthz                               store liveness
//
// Timestamps are Unix seconds or RFC 3339.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nhalm/canonlog"

	"github.com/ryhazerus/hitcount"
	"github.com/ryhazerus/hitcount/store"
)

// Server serves the counter API over a shared store.
type Server struct {
	store       store.Store
	counterOpts []hitcount.Option
	tracker     *hitcount.Tracker
	health      func(context.Context) error
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithCounterOptions applies opts to every counter the server opens.
func WithCounterOptions(opts ...hitcount.Option) Option {
	return func(s *Server) {
		s.counterOpts = append(s.counterOpts, opts...)
	}
}

// WithTracker serves the tracker on /record and /tracks.
func WithTracker(t *hitcount.Tracker) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

// WithHealthcheck sets the probe run by /healthz.
func WithHealthcheck(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithClock replaces time.Now as the default for omitted timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a Server over st.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{store: st, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(canonical)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errNotFound)
	})

	r.Get("/healthz", s.healthz)
	r.Get("/tracks", s.tracks)
	r.Post("/record", s.record)

	r.Route("/counters/{name}", func(r chi.Router) {
		r.Get("/", s.summary)
		r.Delete("/", s.remove)
		r.Post("/hits", s.hit)
		r.Post("/reset", s.reset)
		r.Get("/buckets/{granularity}", s.bucket)
		r.Get("/series/{granularity}", s.series)
	})
	return r
}

func (s *Server) counter(r *http.Request) (*hitcount.Counter, error) {
	opts := append([]hitcount.Option{hitcount.WithClock(s.now)}, s.counterOpts...)
	return hitcount.New(chi.URLParam(r, "name"), s.store, opts...)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, r, errUnavailable.with(err.Error(), ""))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) tracks(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeJSON(w, http.StatusOK, []hitcount.CounterStatus{})
		return
	}
	snap, err := s.tracker.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type recordResponse struct {
	Matched int `json:"matched"`
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeError(w, r, errBadRequest.with("url is required", "url"))
		return
	}
	if s.tracker == nil {
		writeJSON(w, http.StatusOK, recordResponse{})
		return
	}
	n, err := s.tracker.Record(r.Context(), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	canonlog.InfoAdd(r.Context(), "matched", n)
	writeJSON(w, http.StatusOK, recordResponse{Matched: n})
}

func (s *Server) hit(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := s.timeParam(r, "ts")
	if err != nil {
		writeError(w, r, err)
		return
	}
	canonlog.InfoAdd(r.Context(), "counter", c.Name())
	if err := c.IncrementAt(r.Context(), ts); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type summaryResponse struct {
	Name            string `json:"name"`
	Current         int64  `json:"current"`
	LastFiveSeconds int64  `json:"last_five_seconds"`
	LastHour        int64  `json:"last_hour"`
	LastDay         int64  `json:"last_day"`
	LastWeek        int64  `json:"last_week"`
	LastMonth       int64  `json:"last_month"`
	Total           int64  `json:"total"`
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	resp := summaryResponse{Name: c.Name()}

	reads := []struct {
		dst  *int64
		read func(context.Context) (int64, error)
	}{
		{&resp.Current, c.CurrentCount},
		{&resp.LastFiveSeconds, c.CountsInLastFiveSeconds},
		{&resp.LastHour, c.CountsInLastHour},
		{&resp.LastDay, c.CountsInLastDay},
		{&resp.LastWeek, c.CountsInLastWeek},
		{&resp.LastMonth, c.CountsInLastMonth},
		{&resp.Total, c.Total},
	}
	for _, rd := range reads {
		if *rd.dst, err = rd.read(ctx); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type bucketResponse struct {
	Name        string    `json:"name"`
	Granularity string    `json:"granularity"`
	Key         string    `json:"key"`
	Start       time.Time `json:"start"`
	Count       int64     `json:"count"`
}

func (s *Server) bucket(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := granularityParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ts, err := s.timeParam(r, "ts")
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := c.CountFor(r.Context(), g, ts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bucketResponse{
		Name:        c.Name(),
		Granularity: g.String(),
		Key:         c.BucketKey(g, ts),
		Start:       g.Align(ts, c.Location()),
		Count:       n,
	})
}

type seriesResponse struct {
	Name        string           `json:"name"`
	Granularity string           `json:"granularity"`
	Points      []hitcount.Point `json:"points"`
}

func (s *Server) series(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	g, err := granularityParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if r.URL.Query().Get("from") == "" {
		writeError(w, r, errBadRequest.with("from is required", "from"))
		return
	}
	from, err := s.timeParam(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := s.timeParam(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}

	points, err := c.Series(r.Context(), g, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seriesResponse{Name: c.Name(), Granularity: g.String(), Points: points})
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Reset(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	c, err := s.counter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := c.Delete(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// timeParam reads a Unix-seconds or RFC 3339 query parameter, defaulting to
// now when it is absent.
func (s *Server) timeParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return s.now(), nil
	}
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(sec, 0), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, errInvalidTime.with("expected Unix seconds or RFC 3339: "+raw, name)
	}
	return ts, nil
}

func granularityParam(r *http.Request) (hitcount.Granularity, error) {
	g, err := hitcount.ParseGranularity(chi.URLParam(r, "granularity"))
	if err != nil {
		return 0, errBadRequest.with(err.Error(), "granularity")
	}
	return g, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := toAPIError(err)
	canonlog.ErrorAdd(r.Context(), err)
	writeJSON(w, ae.Status, errorResponse{Error: ae})
}
