package httputil

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MetricsMiddleware records request duration by route pattern and the number
// of requests in flight. Register it first so the whole chain is measured.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method,
			routePattern(r),
			strconv.Itoa(statusOrOK(ww.Status())),
		).Observe(time.Since(start).Seconds())
	})
}

// routePattern is read after the handler ran, once chi has matched the route.
// Unmatched paths share one label.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// statusOrOK covers handlers that write a body without calling WriteHeader.
func statusOrOK(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
