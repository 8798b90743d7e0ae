// Command indexer consumes document ingest events from Kafka and writes them
// into the sharded corpus that the hits service reads.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
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

	logger.Setup("indexer", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer service", "num_shards", cfg.Indexer.NumShards)

	m := metrics.New()
	shutdownMetrics := metrics.StartServer(cfg.Metrics)
	defer shutdownMetrics(context.Background())

	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	router.WithMetrics(m)
	defer router.Close()

	// Document status tracking is optional.
	var pg *postgres.Client
	pg, err = postgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, document status tracking disabled", "error", err)
		pg = nil
	} else {
		defer pg.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router.StartFlushLoops(ctx)

	eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer eventsProducer.Close()
	indexEvents := collector.NewBatchCollector(eventsProducer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	indexEvents.Start(ctx)

	handler := consumer.HandleMessageSharded(router, dbOf(pg), consumer.WithTracker(indexEvents))
	kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, handler)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	stop()
	indexEvents.Close()

	slog.Info("indexer service stopped")
}

func dbOf(pg *postgres.Client) *sql.DB {
	if pg == nil {
		return nil
	}
	return pg.DB
}
