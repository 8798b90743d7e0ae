// Command searcher serves the hits API over the sharded corpus.
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
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/redis"
)

// limiterIdle is how long a client's rate-limit bucket survives unused.
const limiterIdle = 10 * time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup("searcher", cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting hits service", "port", cfg.Server.Port, "num_shards", cfg.Indexer.NumShards)

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
	slog.Info("shard router initialized", "data_dir", cfg.Indexer.DataDir, "docs", router.DocCount())

	collation, err := property.NewCollation(cfg.Hits)
	if err != nil {
		slog.Error("invalid collation", "locale", cfg.Hits.CollationLocale, "error", err)
		os.Exit(1)
	}
	pool := parallel.NewPool(cfg.Hits.PoolSize)
	exec := executor.New(router, cfg.Hits, cfg.Search, pool, collation).
		WithMetrics(m).
		WithTracing(cfg.Tracing)

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, hits caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis).WithMetrics(m)
		slog.Info("hits cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Segments flushed by the indexer become visible without a restart;
	// cached summaries of the old corpus are dropped at the same time.
	if cfg.Indexer.WatchSegments {
		watcher, err := shard.NewWatcher(router, 0, func(int) {
			if queryCache == nil {
				return
			}
			if err := queryCache.Invalidate(context.Background()); err != nil {
				slog.Warn("cache invalidation after reload failed", "error", err)
			}
		})
		if err != nil {
			slog.Error("failed to watch shard directories", "error", err)
			os.Exit(1)
		}
		watcher.Start(ctx)
		defer watcher.Close()
	}

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	collector := analytics.NewCollector(analyticsProducer, cfg.Analytics.BufferSize)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if router.NumShards() > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d shards, %d docs", router.NumShards(), router.DocCount())}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no shards"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: "breaker " + queryCache.BreakerState().String()}
	})

	h := handler.New(exec, queryCache, collector).WithMetrics(m)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/hits", h.Hits)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	limiter := middleware.NewLimiter(cfg.Search.RateLimit, cfg.Search.RateBurst, limiterIdle)
	go func() {
		ticker := time.NewTicker(limiterIdle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(); n > 0 {
					slog.Debug("rate limiter buckets evicted", "count", n)
				}
			}
		}
	}()

	// request → RequestID → Metrics → RateLimit → Timeout → mux
	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RateLimit(limiter)(chain)
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

	slog.Info("hits service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("hits service stopped")
}
