package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/middleware"
)

// HitsExecutor is implemented by *executor.Executor.
type HitsExecutor interface {
	Prepare(req executor.Request) (executor.Request, *query.Query, error)
	Execute(ctx context.Context, req executor.Request) (*executor.Summary, error)
}

// Tracker receives one analytics event per request.
type Tracker interface {
	Track(event any)
}

type Handler struct {
	executor  HitsExecutor
	cache     *cache.QueryCache
	collector Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(exec HitsExecutor, queryCache *cache.QueryCache, collector Tracker) *Handler {
	return &Handler{
		executor:  exec,
		cache:     queryCache,
		collector: collector,
		logger:    slog.Default().With("component", "hits-handler"),
	}
}

func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

// Hits serves GET /api/v1/hits.
func (h *Handler) Hits(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, err := parseRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	req, q, err := h.executor.Prepare(req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var result *executor.Summary
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, req, q.String(), func() (*executor.Summary, error) {
			return h.executor.Execute(ctx, req)
		})
	} else {
		result, err = h.executor.Execute(ctx, req)
	}
	latency := time.Since(start)

	if err != nil {
		log.Error("hits query failed", "query", req.Query, "error", err)
		h.track(ctx, analytics.HitsEvent{
			Query:      req.Query,
			Normalized: q.String(),
			Sort:       req.Sort,
			Group:      req.Group,
			LatencyMs:  latency.Milliseconds(),
			Error:      err.Error(),
		})
		h.observe("error", "miss", latency, 0)
		h.writeError(w, err)
		return
	}

	log.Info("hits query completed",
		"query_id", result.QueryID,
		"query", req.Query,
		"processed", result.Stats.Processed,
		"counted", result.Stats.Counted,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, analytics.HitsEvent{
		QueryID:      result.QueryID,
		Query:        req.Query,
		Normalized:   result.Normalized,
		Sort:         req.Sort,
		Group:        req.Group,
		Processed:    result.Stats.Processed,
		Counted:      result.Stats.Counted,
		Returned:     len(result.Hits),
		Groups:       result.NumGroups,
		LimitReached: result.Stats.ProcessLimitReached || result.Stats.CountLimitReached,
		Segments:     result.Segments,
		LatencyMs:    latency.Milliseconds(),
		CacheHit:     cacheHit,
	})
	resultType, cacheStatus := "hits", "miss"
	if result.Stats.Counted == 0 {
		resultType = "zero_result"
	}
	if cacheHit {
		cacheStatus = "hit"
	}
	h.observe(resultType, cacheStatus, latency, len(result.Hits))

	h.writeJSON(w, http.StatusOK, result)
}

// parseRequest reads q, sort, group, filter, doc, maxPerGroup, first, number
// and count from the query string.
func parseRequest(r *http.Request) (executor.Request, error) {
	v := r.URL.Query()
	req := executor.Request{
		Query:  v.Get("q"),
		Sort:   v.Get("sort"),
		Group:  v.Get("group"),
		Filter: v.Get("filter"),
	}
	if req.Query == "" {
		return req, fmt.Errorf("%w: query parameter 'q' is required", apperrors.ErrInvalidInput)
	}
	ints := []struct {
		name string
		dst  *int64
	}{
		{"first", &req.First},
		{"number", &req.Number},
		{"maxPerGroup", &req.MaxPerGroup},
	}
	for _, p := range ints {
		s := v.Get(p.name)
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return req, fmt.Errorf("%w: %s must be a non-negative integer", apperrors.ErrInvalidInput, p.name)
		}
		*p.dst = n
	}
	if s := v.Get("doc"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			return req, fmt.Errorf("%w: doc must be a non-negative document number", apperrors.ErrInvalidInput)
		}
		doc := int32(n)
		req.Doc = &doc
	}
	if s := v.Get("count"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return req, fmt.Errorf("%w: count must be a boolean", apperrors.ErrInvalidInput)
		}
		req.Count = b
	}
	return req, nil
}

func (h *Handler) track(ctx context.Context, event analytics.HitsEvent) {
	if h.collector == nil {
		return
	}
	event.Type = analytics.EventHitsQuery
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	h.collector.Track(event)
}

func (h *Handler) observe(resultType, cacheStatus string, latency time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	h.metrics.SearchResultsCount.WithLabelValues().Observe(float64(returned))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "caching is disabled"})
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cache invalidation failed"})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to its HTTP status. Server-side failures are reported
// without their internal detail.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && !errors.Is(err, apperrors.ErrCancelled) {
		message = "hits query failed"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
