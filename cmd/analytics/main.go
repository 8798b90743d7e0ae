// Command analytics starts the standalone analytics aggregation service.
//
// It consumes hits-query and indexing events from Kafka, aggregates them in
// memory (query totals, latency percentiles, cache hit rate, zero-hit and
// top queries, groupings) and exposes them at GET /api/v1/analytics. With
// PostgreSQL available, totals are snapshotted periodically, restored on
// start, and listed at GET /api/v1/analytics/history.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("analytics", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	analyticsHandler := analytics.NewHandler(agg)

	var saved <-chan struct{}
	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
		pg = nil
	} else {
		defer pg.Close()
		store := aggregator.NewStore(pg)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to create snapshot schema", "error", err)
			os.Exit(1)
		}
		if err := store.RestoreLatest(ctx, agg); err != nil {
			slog.Warn("restoring analytics snapshot failed", "error", err)
		}
		saved = store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		analyticsHandler.WithHistory(store)
	}

	// Offsets are tracked apart from the indexer's group.
	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup += "-analytics"
	consumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})
	var pgPing func(context.Context) error
	if pg != nil {
		pgPing = pg.Ping
	}
	checker.Register("postgres", health.Ping(pgPing, false))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", analyticsHandler.History)
	mux.HandleFunc("GET /health", checker.ReportHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if saved != nil {
		stop()
		<-saved
	}
	slog.Info("analytics service stopped")
}
