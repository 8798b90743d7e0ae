package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

type events struct {
	mu  sync.Mutex
	got []analytics.HitsEvent
}

func (e *events) Track(event any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, event.(analytics.HitsEvent))
}

func newHandler(t *testing.T) (*Handler, *events) {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.IndexDocument("a", "", "red fox jumps over the red fence"))
	require.NoError(t, e.IndexDocument("b", "", "a red hen"))
	require.NoError(t, e.Flush())

	cfg := config.Default()
	cfg.Hits.PollInterval = 5 * time.Millisecond
	ex := executor.New(e, cfg.Hits, cfg.Search, parallel.NewPool(2), nil)
	tracked := &events{}
	return New(ex, nil, tracked), tracked
}

func get(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHitsEndpoint(t *testing.T) {
	h, tracked := newHandler(t)
	rec := get(t, h.Hits, "/api/v1/hits?q=red&number=2&count=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var sum executor.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Len(t, sum.Hits, 2)
	assert.True(t, sum.HasMore)
	require.NotNil(t, sum.Docs)
	assert.Equal(t, uint64(2), *sum.Docs)
	assert.Equal(t, int64(3), sum.Stats.Counted)

	require.Len(t, tracked.got, 1)
	ev := tracked.got[0]
	assert.Equal(t, analytics.EventHitsQuery, ev.Type)
	assert.Equal(t, "red", ev.Normalized)
	assert.Equal(t, 2, ev.Returned)
	assert.False(t, ev.CacheHit)
}

func TestGroupedEndpoint(t *testing.T) {
	h, _ := newHandler(t)
	rec := get(t, h.Hits, "/api/v1/hits?q=red&group=right&maxPerGroup=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var sum executor.Summary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, 3, sum.NumGroups)
	for _, g := range sum.Groups {
		assert.Equal(t, int64(1), g.Size)
		assert.Len(t, g.Hits, 1)
	}
}

func TestBadRequests(t *testing.T) {
	h, tracked := newHandler(t)
	for _, target := range []string{
		"/api/v1/hits",
		"/api/v1/hits?q=red&first=-1",
		"/api/v1/hits?q=red&number=ten",
		"/api/v1/hits?q=red&count=maybe",
		"/api/v1/hits?q=red&doc=-2",
		"/api/v1/hits?q=red&sort=colour",
		"/api/v1/hits?q=red&group=colour",
		"/api/v1/hits?q=red&filter=docid",
		"/api/v1/hits?q=the",
	} {
		rec := get(t, h.Hits, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.NotEmpty(t, body["error"], target)
	}
	assert.Empty(t, tracked.got, "requests rejected before execution are not tracked")
}

func TestCacheEndpointsWithoutCache(t *testing.T) {
	h, _ := newHandler(t)
	rec := get(t, h.CacheStats, "/api/v1/cache/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "disabled")

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get(t, h.Health, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHitsEndpointRecordsMetrics(t *testing.T) {
	h, _ := newHandler(t)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h.WithMetrics(m)

	get(t, h.Hits, "/api/v1/hits?q=red")
	get(t, h.Hits, "/api/v1/hits?q=unicorn")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hits")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
}
