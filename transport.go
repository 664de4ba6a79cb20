package hitcount

import "net/http"

// transport implements http.RoundTripper and records a hit for every
// outgoing request before forwarding it.
type transport struct {
	tracker *Tracker
	base    http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.tracker.observe(req.Context(), req.URL.Host, req.URL.Path)
	return t.base.RoundTrip(req)
}

// middleware records a hit for every inbound request before serving it.
type middleware struct {
	tracker *Tracker
	next    http.Handler
}

func (m *middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.tracker.observe(r.Context(), r.Host, r.URL.Path)
	m.next.ServeHTTP(w, r)
}
