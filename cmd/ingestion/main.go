// Command ingestion accepts document writes over HTTP.
//
// POST /api/v1/documents records a document in PostgreSQL and publishes it
// to the ingest topic; DELETE /api/v1/documents/{id} publishes a delete. The
// indexer applies both and updates the document status.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion/publisher"
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
	logger.Setup("ingestion", cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestion service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Documents cannot be accepted without their metadata row, so unlike
	// the indexer this service refuses to start without postgres.
	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	store := publisher.NewPGStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("creating documents schema: %w", err)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()

	m := metrics.New()
	shutdownMetrics := metrics.StartServer(cfg.Metrics)
	defer shutdownMetrics(context.Background())

	checker := health.NewChecker()
	checker.Register("postgres", health.Ping(db.Ping, true))

	mux := http.NewServeMux()
	handler.New(publisher.New(store, producer, cfg.Indexer.NumShards)).Register(mux)
	mux.HandleFunc("GET /health", checker.ReportHandler())
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

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
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("ingestion service listening", "addr", server.Addr, "topic", cfg.Kafka.Topics.DocumentIngest)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
