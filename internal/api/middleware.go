package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nhalm/canonlog"
)

// canonical emits one canonical log line per request carrying the method,
// route, status, duration and any error a handler attached.
func canonical(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := canonlog.NewContext(r.Context())
		start := time.Now()

		canonlog.InfoAddMany(ctx, map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(ctx),
		})

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)

		defer func() {
			route := r.URL.Path
			if rctx := chi.RouteContext(ctx); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			canonlog.InfoAddMany(ctx, map[string]any{
				"route":       route,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			canonlog.Flush(ctx)
		}()

		next.ServeHTTP(ww, r)
	})
}
