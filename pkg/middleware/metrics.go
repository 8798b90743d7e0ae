// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, per-client rate limits and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

// Metrics counts requests by method, route and status, observes their
// latency and tracks how many are in flight.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			defer func() {
				m.HTTPRequestsInFlight.Dec()
				route := routeLabel(r.URL.Path)
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// statusRecorder remembers the first status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) code() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}

// routeLabel bounds label cardinality: document ids collapse to a
// placeholder and anything outside the known surfaces shares one label.
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/v1/documents/") {
		return "/api/v1/documents/{id}"
	}
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/health") || path == "/metrics" {
		return path
	}
	return "other"
}
