// Package executor evaluates a hits request against the current corpus
// snapshot: it parses the query, starts a lazily fetched result, applies the
// requested filter, sort, grouping and window, and renders the outcome as a
// JSON-ready Summary.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/results"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/tracing"
)

// contextWords is the number of words rendered on each side of a hit.
const contextWords = 5

// Corpus is anything that can hand out an immutable snapshot; both a single
// engine and a shard router qualify.
type Corpus interface {
	Snapshot() *indexer.Snapshot
}

// Request describes one hits query. Sort and Group are property expressions
// (see property.Parse); Filter is "property=value" and Doc restricts the hits
// to one global document. Number and MaxPerGroup fall back to the configured
// defaults when zero.
type Request struct {
	Query       string
	Sort        string
	Group       string
	Filter      string
	Doc         *int32
	MaxPerGroup int64
	First       int64
	Number      int64
	Count       bool
}

// Key identifies requests with the same outcome on the same snapshot.
func (r Request) Key(normalized string) string {
	doc := "-"
	if r.Doc != nil {
		doc = strconv.Itoa(int(*r.Doc))
	}
	return fmt.Sprintf("q=%s|sort=%s|group=%s|filter=%s|doc=%s|mpg=%d|first=%d|n=%d|count=%t",
		normalized, r.Sort, r.Group, r.Filter, doc, r.MaxPerGroup, r.First, r.Number, r.Count)
}

type HitView struct {
	Doc      int32             `json:"doc"`
	DocID    string            `json:"doc_id"`
	Start    int32             `json:"start"`
	End      int32             `json:"end"`
	Left     string            `json:"left"`
	Text     string            `json:"text"`
	Right    string            `json:"right"`
	Captures map[string]string `json:"captures,omitempty"`
}

type GroupView struct {
	Identity string    `json:"identity"`
	Size     int64     `json:"size"`
	Hits     []HitView `json:"hits"`
}

// Summary is the rendered answer to a Request.
type Summary struct {
	QueryID    string             `json:"query_id"`
	Query      string             `json:"query"`
	Normalized string             `json:"normalized"`
	Sort       string             `json:"sort,omitempty"`
	Group      string             `json:"group,omitempty"`
	First      int64              `json:"first"`
	Number     int64              `json:"number"`
	Hits       []HitView          `json:"hits"`
	Groups     []GroupView        `json:"groups,omitempty"`
	NumGroups  int                `json:"num_groups,omitempty"`
	Captures   []string           `json:"captures,omitempty"`
	Stats      results.Stats      `json:"stats"`
	HasMore    bool               `json:"has_more"`
	Docs       *uint64            `json:"docs,omitempty"`
	Segments   int                `json:"segments"`
	Timings    map[string]float64 `json:"timings_ms,omitempty"`
	LatencyMs  int64              `json:"latency_ms"`
}

type Executor struct {
	corpus    Corpus
	cfg       config.HitsConfig
	search    config.SearchConfig
	pool      *parallel.Pool
	collation *property.Collation
	inflight  *semaphore.Weighted
	sampler   tracing.Sampler
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New returns an Executor over corpus. When search.MaxConcurrentQueries is
// positive, Execute admits at most that many queries at once.
func New(corpus Corpus, cfg config.HitsConfig, search config.SearchConfig, pool *parallel.Pool, collation *property.Collation) *Executor {
	e := &Executor{
		corpus:    corpus,
		cfg:       cfg,
		search:    search,
		pool:      pool,
		collation: collation,
		logger:    slog.Default().With("component", "hits-executor"),
	}
	if search.MaxConcurrentQueries > 0 {
		e.inflight = semaphore.NewWeighted(int64(search.MaxConcurrentQueries))
	}
	return e
}

func (e *Executor) WithMetrics(m *metrics.Metrics) *Executor {
	e.metrics = m
	return e
}

// WithTracing logs a sampled share of query span trees.
func (e *Executor) WithTracing(cfg config.TracingConfig) *Executor {
	e.sampler = tracing.NewSampler(cfg)
	return e
}

// Prepare validates req, fills in defaults and parses the query and its
// sort, group and filter properties. The returned request is what Execute
// will run and what caches should key on.
func (e *Executor) Prepare(req Request) (Request, *query.Query, error) {
	p, err := e.compile(req)
	if err != nil {
		return req, nil, err
	}
	return p.req, p.query, nil
}

func (e *Executor) normalize(req Request) (Request, *query.Query, error) {
	if req.First < 0 {
		return req, nil, fmt.Errorf("%w: first must not be negative", apperrors.ErrInvalidInput)
	}
	if req.Number < 0 || req.MaxPerGroup < 0 {
		return req, nil, fmt.Errorf("%w: number and maxPerGroup must not be negative", apperrors.ErrInvalidInput)
	}
	if req.Number == 0 {
		req.Number = int64(e.search.DefaultLimit)
	}
	if e.search.MaxResults > 0 && req.Number > int64(e.search.MaxResults) {
		req.Number = int64(e.search.MaxResults)
	}
	if req.MaxPerGroup == 0 {
		req.MaxPerGroup = e.cfg.MaxStoredPerGroup
	}
	if req.Doc != nil && *req.Doc < 0 {
		return req, nil, fmt.Errorf("%w: doc must not be negative", apperrors.ErrInvalidInput)
	}
	q, err := query.Parse(req.Query)
	if err != nil {
		return req, nil, err
	}
	return req, q, nil
}

type plan struct {
	req    Request
	query  *query.Query
	sort   property.Property
	group  property.Property
	filter property.Property
	value  property.Value
}

func (e *Executor) compile(req Request) (*plan, error) {
	req, q, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	p := &plan{req: req, query: q}
	if req.Sort != "" {
		if p.sort, err = property.Parse(req.Sort); err != nil {
			return nil, err
		}
	}
	if req.Group != "" {
		if p.group, err = property.Parse(req.Group); err != nil {
			return nil, err
		}
	}
	if req.Filter != "" {
		name, raw, ok := strings.Cut(req.Filter, "=")
		if !ok {
			return nil, fmt.Errorf("%w: filter %q is not property=value", apperrors.ErrInvalidInput, req.Filter)
		}
		if p.filter, err = property.Parse(name); err != nil {
			return nil, err
		}
		if p.value, err = property.ParseValue(p.filter, raw); err != nil {
			return nil, fmt.Errorf("%w: filter value %q: %v", apperrors.ErrInvalidInput, raw, err)
		}
	}
	return p, nil
}

// Execute runs req over a fresh snapshot of the corpus.
func (e *Executor) Execute(ctx context.Context, req Request) (*Summary, error) {
	start := time.Now()
	p, err := e.compile(req)
	if err != nil {
		return nil, err
	}
	req = p.req

	if e.search.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.search.Timeout)
		defer cancel()
	}
	if e.inflight != nil {
		if err := e.inflight.Acquire(ctx, 1); err != nil {
			return nil, classify(err)
		}
		defer e.inflight.Release(1)
	}

	queryID := uuid.NewString()
	ctx, span := tracing.StartSpan(ctx, "hits", queryID)
	defer func() {
		span.End()
		if e.sampler.Sample() {
			span.Log(e.logger)
		}
	}()

	snap := e.corpus.Snapshot()
	span.SetAttr("query", p.query.String())
	span.SetAttr("segments", len(snap.Segments()))

	defs := hits.NewMatchInfoDefs()
	env := results.Env{
		Config:    e.cfg,
		Pool:      e.pool,
		Collation: e.collation,
		Docs:      snap,
		Metrics:   e.metrics,
	}
	all := results.FromQuery(env, p.query.Sources(snap, defs), defs)
	defer all.Close()

	sum := &Summary{
		QueryID:    queryID,
		Query:      req.Query,
		Normalized: p.query.String(),
		Sort:       req.Sort,
		Group:      req.Group,
		First:      req.First,
		Number:     req.Number,
		Hits:       []HitView{},
		Segments:   len(snap.Segments()),
	}

	if err := e.run(ctx, p, all, snap, sum); err != nil {
		span.SetAttr("error", err.Error())
		e.logger.Error("hits query failed", "query_id", queryID, "query", req.Query, "error", err)
		return nil, classify(err)
	}

	sum.Stats = all.Stats()
	for _, d := range defs.Defs() {
		sum.Captures = append(sum.Captures, d.Name)
	}
	sum.Timings = span.Timings()
	sum.LatencyMs = time.Since(start).Milliseconds()
	span.SetAttr("processed", sum.Stats.Processed)
	span.SetAttr("counted", sum.Stats.Counted)

	e.logger.Info("hits query executed",
		"query_id", queryID,
		"query", sum.Normalized,
		"processed", sum.Stats.Processed,
		"counted", sum.Stats.Counted,
		"returned", len(sum.Hits),
		"groups", sum.NumGroups,
		"latency_ms", sum.LatencyMs,
	)
	return sum, nil
}

func (e *Executor) run(ctx context.Context, p *plan, all *results.Hits, snap *indexer.Snapshot, sum *Summary) error {
	req := p.req
	if req.Count {
		cctx, span := tracing.StartChildSpan(ctx, "count")
		n, err := all.CountDocs(cctx)
		span.End()
		if err != nil {
			return err
		}
		sum.Docs = &n
	}

	h := all
	if req.Doc != nil {
		fctx, span := tracing.StartChildSpan(ctx, "doc")
		doc, err := h.ForDoc(fctx, *req.Doc)
		span.End()
		if err != nil {
			return err
		}
		h = doc
	}
	if p.filter != nil {
		fctx, span := tracing.StartChildSpan(ctx, "filter")
		span.SetAttr("property", p.filter.Name())
		filtered, err := h.Filter(fctx, p.filter, p.value)
		span.End()
		if err != nil {
			return err
		}
		h = filtered
	}

	if p.group != nil {
		return e.grouped(ctx, p, h, snap, sum)
	}
	if p.sort != nil {
		sctx, span := tracing.StartChildSpan(ctx, "sort")
		span.SetAttr("property", p.sort.Name())
		sorted, err := h.Sorted(sctx, p.sort)
		span.End()
		if err != nil {
			return err
		}
		h = sorted
	}

	wctx, span := tracing.StartChildSpan(ctx, "fetch")
	defer span.End()
	window, err := h.Window(wctx, req.First, req.Number)
	if err != nil {
		return err
	}
	more, err := h.SizeAtLeast(wctx, req.First+req.Number+1)
	if err != nil {
		return err
	}
	sum.HasMore = more
	defs := h.Defs().Defs()
	return window.Iterate(wctx, func(_ int64, hit *hits.EphemeralHit) bool {
		sum.Hits = append(sum.Hits, render(snap, defs, hit))
		return true
	})
}

func (e *Executor) grouped(ctx context.Context, p *plan, h *results.Hits, snap *indexer.Snapshot, sum *Summary) error {
	gctx, span := tracing.StartChildSpan(ctx, "group")
	defer span.End()
	span.SetAttr("property", p.group.Name())

	groups, err := h.Grouped(gctx, p.group, p.req.MaxPerGroup)
	if err != nil {
		return err
	}
	ordered := groups.BySize()
	sum.NumGroups = len(ordered)
	span.SetAttr("groups", sum.NumGroups)

	first := min(p.req.First, int64(len(ordered)))
	last := min(first+p.req.Number, int64(len(ordered)))
	sum.HasMore = last < int64(len(ordered))
	sum.Groups = make([]GroupView, 0, last-first)

	defs := h.Defs().Defs()
	var hit hits.EphemeralHit
	for _, g := range ordered[first:last] {
		gv := GroupView{Identity: g.Value.String(), Size: g.Total, Hits: make([]HitView, 0, g.Hits.Len())}
		for i := int64(0); i < g.Hits.Len(); i++ {
			g.Hits.Get(i, &hit)
			gv.Hits = append(gv.Hits, render(snap, defs, &hit))
		}
		sum.Groups = append(sum.Groups, gv)
	}
	return nil
}

// render turns a hit with a global doc into its text view.
func render(snap *indexer.Snapshot, defs []hits.MatchInfoDef, hit *hits.EphemeralHit) HitView {
	text := func(start, end int32) string {
		return strings.Join(snap.Words(hit.Doc, start, end), " ")
	}
	v := HitView{
		Doc:   hit.Doc,
		DocID: snap.ExternalID(hit.Doc),
		Start: hit.Start,
		End:   hit.End,
		Left:  text(max(0, hit.Start-contextWords), hit.Start),
		Text:  text(hit.Start, hit.End),
		Right: text(hit.End, hit.End+contextWords),
	}
	for _, d := range defs {
		span, ok := hits.MatchInfoAt(hit.MatchInfo, d.Index).(hits.Span)
		if !ok {
			continue
		}
		if v.Captures == nil {
			v.Captures = make(map[string]string, len(defs))
		}
		v.Captures[d.Name] = text(span.Start, span.End)
	}
	return v
}

// classify makes sure deadline and cancellation errors carry ErrCancelled.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Cancelled(err)
	}
	return err
}
