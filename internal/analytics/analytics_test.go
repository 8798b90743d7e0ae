package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleEventAggregates(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)
	ctx := context.Background()

	events := []any{
		HitsEvent{Type: EventHitsQuery, Query: "Cats", Normalized: "cat", Processed: 3, Counted: 3, LatencyMs: 10},
		HitsEvent{Type: EventHitsQuery, Query: "cats", Normalized: "cat", Processed: 3, Counted: 3, LatencyMs: 20, CacheHit: true, Group: "docname"},
		HitsEvent{Type: EventHitsQuery, Query: "unicorns", Normalized: "unicorn", LatencyMs: 5},
		HitsEvent{Type: EventHitsQuery, Query: "cat", Error: "boom"},
		IndexEvent{Type: EventIndexDoc, DocumentID: "a"},
		IndexEvent{Type: EventDeleteDoc, DocumentID: "a"},
	}
	for _, e := range events {
		require.NoError(t, handle(ctx, nil, encode(t, e)))
	}
	require.NoError(t, handle(ctx, nil, []byte(`{"type":"mystery"}`)), "bad events are skipped, not retried")

	s := agg.Stats()
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(1), s.FailedQueries)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(2), s.CacheMisses)
	assert.Equal(t, int64(1), s.ZeroHitCount)
	assert.Equal(t, int64(6), s.HitsCounted)
	assert.Equal(t, int64(1), s.TotalDocsIndexed)
	assert.Equal(t, int64(1), s.TotalDocsDeleted)
	assert.Equal(t, []QueryCount{{Query: "cat", Count: 2}, {Query: "unicorn", Count: 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{Query: "unicorn", Count: 1}}, s.ZeroHitQueries)
	assert.Equal(t, []QueryCount{{Query: "docname", Count: 1}}, s.TopGroupings)
	assert.InDelta(t, 35.0/3, s.AvgLatencyMs, 0.001)
	assert.Equal(t, int64(20), s.P99LatencyMs)
}

func TestRestoreSeedsTotals(t *testing.T) {
	agg := NewAggregator()
	agg.Restore(AggregatedStats{TotalQueries: 40, TotalDocsIndexed: 7})
	agg.Record(HitsEvent{Type: EventHitsQuery, Query: "x", Counted: 1})
	s := agg.Stats()
	assert.Equal(t, int64(41), s.TotalQueries)
	assert.Equal(t, int64(7), s.TotalDocsIndexed)
}

func TestDecodeRejectsUnknownTypes(t *testing.T) {
	_, err := Decode([]byte(`{"type":"search"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	e, err := Decode([]byte(`{"type":"index_document","document_id":"d1","shard_id":2}`))
	require.NoError(t, err)
	assert.Equal(t, IndexEvent{Type: EventIndexDoc, DocumentID: "d1", ShardID: 2}, e)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (f *fakePublisher) Publish(_ context.Context, e kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestCollectorPublishesKeyedEvents(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Track(HitsEvent{Type: EventHitsQuery, Query: "Cats", Normalized: "cat"})
	c.Track(IndexEvent{Type: EventIndexDoc, DocumentID: "doc-1"})
	c.Close()

	require.Equal(t, 2, pub.len())
	assert.Equal(t, "cat", pub.events[0].Key)
	assert.Equal(t, "doc-1", pub.events[1].Key)
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8)
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	for i := 0; i < 3; i++ {
		c.Track(HitsEvent{Type: EventHitsQuery, Query: "q"})
	}
	cancel()
	assert.Eventually(t, func() bool { return pub.len() == 3 }, time.Second, 5*time.Millisecond)
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(HitsEvent{Type: EventHitsQuery, Query: "x", Counted: 2})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, int64(1), got.TotalQueries)
}

type staticHistory []AggregatedStats

func (h staticHistory) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	return h[:min(limit, len(h))], nil
}

func TestHistoryHandler(t *testing.T) {
	h := NewHandler(NewAggregator())
	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.WithHistory(staticHistory{{TotalQueries: 3}, {TotalQueries: 2}, {TotalQueries: 1}})
	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got []AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].TotalQueries)

	rec = httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
