package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
)

const indexPage = `<html><body><h1>Corpus Hits Metrics</h1>` +
	`<p><a href="/metrics">/metrics</a></p>` +
	`<p>hits_queries_total, hits_query_latency_seconds, hits_returned_count</p></body></html>`

// StartServer exposes /metrics on its own port. When metrics are disabled
// it returns a no-op shutdown.
func StartServer(cfg config.MetricsConfig) (shutdown func(context.Context) error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      newMux(Handler()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		slog.Error("metrics server not started", "addr", server.Addr, "error", err)
		return func(context.Context) error { return nil }
	}
	go func() {
		slog.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}

func newMux(metricsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, indexPage)
	})
	return mux
}
