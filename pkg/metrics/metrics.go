// Package metrics defines the Prometheus collectors shared by the services
// and the handler that exposes them for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	stageBuckets   = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

type Metrics struct {
	// HTTP surface.
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Hits queries and their cache.
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  *prometheus.HistogramVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec

	// Hit pipeline stages.
	HitsFetchedTotal   prometheus.Counter
	HitsCountedTotal   prometheus.Counter
	FetchRoundsTotal   *prometheus.CounterVec
	FetchRoundDuration prometheus.Histogram
	SortDuration       *prometheus.HistogramVec
	GroupDuration      *prometheus.HistogramVec
	GroupsCount        prometheus.Histogram

	// Index maintenance.
	DocsIndexedTotal  prometheus.Counter
	IndexFlushesTotal *prometheus.CounterVec
	ActiveSegments    *prometheus.GaugeVec
}

// New registers every collector with the default registry. Call it once
// per process.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector with reg and panics if any is
// already registered there.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: requestBuckets,
		}, []string{"method", "path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		SearchQueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hits_queries_total",
			Help: "Hits queries by result type (hits, zero_result, error).",
		}, []string{"result_type"}),
		SearchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hits_query_latency_seconds",
			Help:    "Hits query latency by cache status.",
			Buckets: requestBuckets[:9],
		}, []string{"cache_status"}),
		SearchResultsCount: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hits_returned_count",
			Help:    "Hits rendered per query window.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}, nil),
		CacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Summary cache hits.",
		}),
		CacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Summary cache misses, including lookups skipped by an open breaker.",
		}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),

		HitsFetchedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hits_fetched_total",
			Help: "Hits stored by fetch rounds.",
		}),
		HitsCountedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hits_counted_total",
			Help: "Hits counted by fetch rounds, stored or not.",
		}),
		FetchRoundsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hit_fetch_rounds_total",
			Help: "Fetch rounds by status (ok, error).",
		}, []string{"status"}),
		FetchRoundDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hit_fetch_round_duration_seconds",
			Help:    "Duration of one fetch round across all segments.",
			Buckets: stageBuckets,
		}),
		SortDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hit_sort_duration_seconds",
			Help:    "Hit sort latency by strategy (single, merge).",
			Buckets: stageBuckets,
		}, []string{"strategy"}),
		GroupDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hit_group_duration_seconds",
			Help:    "Hit grouping latency by strategy (single, parallel).",
			Buckets: stageBuckets,
		}, []string{"strategy"}),
		GroupsCount: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hit_groups_count",
			Help:    "Groups produced per grouping.",
			Buckets: prometheus.ExponentialBuckets(1, 10, 6),
		}),

		DocsIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docs_indexed_total",
			Help: "Documents added to an in-memory index.",
		}),
		IndexFlushesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "index_flushes_total",
			Help: "Segment flushes by status (ok, error).",
		}, []string{"status"}),
		ActiveSegments: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "active_segments",
			Help: "Open index segments per index directory.",
		}, []string{"index"}),
	}
}

// Handler returns the scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
