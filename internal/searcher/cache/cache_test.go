package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/resilience"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemStore() *memStore { return &memStore{data: make(map[string]string)} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func TestGetOrComputeCachesSummary(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{CacheTTL: time.Minute})
	req := executor.Request{Query: "cats", Number: 10}

	var calls atomic.Int32
	compute := func() (*executor.Summary, error) {
		calls.Add(1)
		return &executor.Summary{QueryID: "q1", Normalized: "cat", Hits: []executor.HitView{{DocID: "a", Text: "cat"}}}, nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), req, "cat", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "q1", got.QueryID)

	got, hit, err = c.GetOrCompute(context.Background(), req, "cat", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "cat", got.Hits[0].Text)
	assert.Equal(t, int32(1), calls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses, "the first call misses before and inside singleflight")
}

func TestKeyDependsOnWindow(t *testing.T) {
	a := BuildKey(executor.Request{Query: "Cats", Number: 10}, "cat")
	b := BuildKey(executor.Request{Query: "cats", Number: 10}, "cat")
	c := BuildKey(executor.Request{Query: "cats", Number: 10, First: 10}, "cat")
	assert.Equal(t, a, b, "raw query text does not matter, only the normalized form")
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, keyPrefix)
}

func TestInvalidateDropsEntries(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{})
	key := BuildKey(executor.Request{Query: "cats"}, "cat")
	c.Set(context.Background(), key, &executor.Summary{QueryID: "x"})
	store.data["other:key"] = "kept"

	require.NoError(t, c.Invalidate(context.Background()))
	_, ok := c.Get(context.Background(), key)
	assert.False(t, ok)
	assert.Contains(t, store.data, "other:key")
}

func TestCorruptEntryIsDropped(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{})
	store.data["hits:bad"] = "{not json"
	_, ok := c.Get(context.Background(), "hits:bad")
	assert.False(t, ok)
	assert.NotContains(t, store.data, "hits:bad")
}

func TestBreakerOpensOnRedisFailures(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(store, config.RedisConfig{}).WithBreakerConfig(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}).WithMetrics(m)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))

	var calls int
	compute := func() (*executor.Summary, error) {
		calls++
		return &executor.Summary{QueryID: "fresh"}, nil
	}
	for i := 0; i < 3; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), executor.Request{Query: "cats"}, "cat", compute)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "fresh", got.QueryID)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))

	err := c.Invalidate(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestComputeErrorsAreNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, config.RedisConfig{})
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), executor.Request{Query: "cats"}, "cat", func() (*executor.Summary, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.data)
}

func TestCancelledRequestsDoNotTripBreaker(t *testing.T) {
	store := newMemStore()
	store.err = context.Canceled
	c := New(store, config.RedisConfig{}).WithBreakerConfig(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	for i := 0; i < 3; i++ {
		_, ok := c.Get(context.Background(), "hits:x")
		assert.False(t, ok)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}

type slowStore struct {
	*memStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, key string) (string, error) {
	select {
	case <-time.After(s.delay):
		return s.memStore.Get(ctx, key)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestSlowRedisCountsAsMiss(t *testing.T) {
	store := slowStore{memStore: newMemStore(), delay: time.Second}
	store.data["hits:k"] = `{"query":"cat"}`
	c := New(store, config.RedisConfig{OpTimeout: 10 * time.Millisecond}).
		WithBreakerConfig(resilience.CircuitBreakerConfig{FailureThreshold: 2})

	start := time.Now()
	_, ok := c.Get(context.Background(), "hits:k")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	c.Get(context.Background(), "hits:k")
	assert.Equal(t, resilience.StateOpen, c.BreakerState(), "timeouts count as failures")
	_, misses := c.Stats()
	assert.Equal(t, int64(2), misses)
}
