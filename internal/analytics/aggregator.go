package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalQueries     int64        `json:"total_queries"`
	FailedQueries    int64        `json:"failed_queries"`
	TotalDocsIndexed int64        `json:"total_docs_indexed"`
	TotalDocsDeleted int64        `json:"total_docs_deleted"`
	CacheHits        int64        `json:"cache_hits"`
	CacheMisses      int64        `json:"cache_misses"`
	ZeroHitCount     int64        `json:"zero_hit_count"`
	LimitReached     int64        `json:"limit_reached_count"`
	HitsProcessed    int64        `json:"hits_processed"`
	HitsCounted      int64        `json:"hits_counted"`
	AvgLatencyMs     float64      `json:"avg_latency_ms"`
	P50LatencyMs     int64        `json:"p50_latency_ms"`
	P95LatencyMs     int64        `json:"p95_latency_ms"`
	P99LatencyMs     int64        `json:"p99_latency_ms"`
	TopQueries       []QueryCount `json:"top_queries"`
	ZeroHitQueries   []QueryCount `json:"zero_hit_queries"`
	TopGroupings     []QueryCount `json:"top_groupings"`
	QueriesPerMinute float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu             sync.RWMutex
	totalQueries   atomic.Int64
	failedQueries  atomic.Int64
	docsIndexed    atomic.Int64
	docsDeleted    atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	zeroHits       atomic.Int64
	limitReached   atomic.Int64
	hitsProcessed  atomic.Int64
	hitsCounted    atomic.Int64
	latencies      []int64
	next           int
	queryCounts    map[string]int64
	zeroHitQueries map[string]int64
	groupings      map[string]int64
	startTime      time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:      make([]int64, 0, maxLatencySamples),
		queryCounts:    make(map[string]int64),
		zeroHitQueries: make(map[string]int64),
		groupings:      make(map[string]int64),
		startTime:      time.Now(),
		logger:         slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent feeds decoded Kafka messages into agg. Undecodable messages
// are logged and committed so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := Decode(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record adds a HitsEvent or IndexEvent to the totals.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case HitsEvent:
		a.recordHitsEvent(e)
	case IndexEvent:
		a.recordIndexEvent(e)
	}
}

func (a *Aggregator) recordHitsEvent(event HitsEvent) {
	a.totalQueries.Add(1)
	if event.Error != "" {
		a.failedQueries.Add(1)
		return
	}
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.LimitReached {
		a.limitReached.Add(1)
	}
	a.hitsProcessed.Add(event.Processed)
	a.hitsCounted.Add(event.Counted)

	query := event.Normalized
	if query == "" {
		query = event.Query
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
	a.queryCounts[query]++
	if event.Counted == 0 {
		a.zeroHits.Add(1)
		a.zeroHitQueries[query]++
	}
	if event.Group != "" {
		a.groupings[event.Group]++
	}
}

func (a *Aggregator) recordIndexEvent(event IndexEvent) {
	if event.Type == EventDeleteDoc {
		a.docsDeleted.Add(1)
		return
	}
	a.docsIndexed.Add(1)
}

// Restore seeds the counters from a persisted snapshot so totals survive a
// restart. Latencies and top lists start over.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.totalQueries.Store(s.TotalQueries)
	a.failedQueries.Store(s.FailedQueries)
	a.docsIndexed.Store(s.TotalDocsIndexed)
	a.docsDeleted.Store(s.TotalDocsDeleted)
	a.cacheHits.Store(s.CacheHits)
	a.cacheMisses.Store(s.CacheMisses)
	a.zeroHits.Store(s.ZeroHitCount)
	a.limitReached.Store(s.LimitReached)
	a.hitsProcessed.Store(s.HitsProcessed)
	a.hitsCounted.Store(s.HitsCounted)
	a.logger.Info("analytics restored from snapshot", "total_queries", s.TotalQueries)
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:     a.totalQueries.Load(),
		FailedQueries:    a.failedQueries.Load(),
		TotalDocsIndexed: a.docsIndexed.Load(),
		TotalDocsDeleted: a.docsDeleted.Load(),
		CacheHits:        a.cacheHits.Load(),
		CacheMisses:      a.cacheMisses.Load(),
		ZeroHitCount:     a.zeroHits.Load(),
		LimitReached:     a.limitReached.Load(),
		HitsProcessed:    a.hitsProcessed.Load(),
		HitsCounted:      a.hitsCounted.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroHitQueries = topN(a.zeroHitQueries, 10)
	stats.TopGroupings = topN(a.groupings, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by query text.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
