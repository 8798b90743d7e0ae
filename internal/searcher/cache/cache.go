// Package cache stores rendered hits summaries in Redis. Identical requests
// running at the same time are coalesced with singleflight, and a circuit
// breaker stops talking to Redis while it keeps failing so queries fall
// through to the executor instead of waiting on timeouts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/resilience"
)

const (
	keyPrefix   = "hits:"
	breakerName = "redis-cache"
)

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	cfg     config.RedisConfig
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, cfg config.RedisConfig) *QueryCache {
	c := &QueryCache{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "query-cache"),
	}
	c.breaker = c.newBreaker(resilience.CircuitBreakerConfig{})
	return c
}

// newBreaker builds a breaker that exports its state to the
// circuit_breaker_state gauge on every transition.
func (c *QueryCache) newBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		c.logger.Warn("cache circuit state changed", "from", from.String(), "to", to.String())
		if c.metrics != nil {
			c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return resilience.NewCircuitBreaker(breakerName, cfg)
}

func (c *QueryCache) WithMetrics(m *metrics.Metrics) *QueryCache {
	c.metrics = m
	m.CircuitBreakerState.WithLabelValues(breakerName).Set(float64(c.breaker.GetState()))
	return c
}

// WithBreakerConfig replaces the default circuit breaker settings.
func (c *QueryCache) WithBreakerConfig(cfg resilience.CircuitBreakerConfig) *QueryCache {
	c.breaker = c.newBreaker(cfg)
	return c
}

// Get returns the cached summary for key. A missing key, a Redis failure and
// an open circuit all count as a miss.
func (c *QueryCache) Get(ctx context.Context, key string) (*executor.Summary, bool) {
	data, err := guarded(ctx, c, c.cfg.OpTimeout, "redis-get", func(ctx context.Context) (string, error) {
		data, err := c.store.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return "", nil
		}
		return data, err
	})
	if err != nil || data == "" {
		if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.Summary
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		if err := c.store.Del(ctx, key); err != nil {
			c.logger.Warn("dropping corrupt cache entry failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, key string, result *executor.Summary) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	_, err = guarded(ctx, c, c.cfg.OpTimeout, "redis-set", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Set(ctx, key, data, c.cfg.CacheTTL)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached summary for req or runs computeFn once for
// all concurrent callers asking for the same key. normalized is the
// canonical form of the query.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	req executor.Request,
	normalized string,
	computeFn func() (*executor.Summary, error),
) (*executor.Summary, bool, error) {
	key := BuildKey(req, normalized)
	if result, ok := c.Get(ctx, key); ok {
		return result, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if result, ok := c.Get(ctx, key); ok {
			return result, nil
		}
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.Summary), false, nil
}

// Invalidate drops every cached summary; the searcher calls it whenever the
// corpus snapshot changes.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := guarded(ctx, c, 0, "redis-invalidate", func(ctx context.Context) (int64, error) {
		return c.store.FlushByPattern(ctx, keyPrefix+"*")
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState reports the circuit breaker state.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// guarded runs one Redis operation through the breaker. Lookups are bounded
// by OpTimeout so a slow Redis costs a query at most that long; a full
// invalidation scan is not.
func guarded[T any](ctx context.Context, c *QueryCache, timeout time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.breaker.Execute(func() error {
		v, err := resilience.CallWithTimeout(ctx, timeout, name, fn)
		out = v
		return err
	})
	return out, err
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the normalized request into a Redis key.
func BuildKey(req executor.Request, normalized string) string {
	hash := sha256.Sum256([]byte(req.Key(normalized)))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
