// Package sortmerge orders the hits of all segments of a query by a hit
// property. Small results are concatenated and sorted in one buffer; larger
// ones are sorted per segment in parallel and combined with a k-way merge.
package sortmerge

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

const mergeCancelCheck = 1024

type Sorter struct {
	cfg     config.HitsConfig
	pool    *parallel.Pool
	coll    *property.Collation
	docs    property.DocSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Sorter. coll may be nil for byte-order string comparison.
func New(cfg config.HitsConfig, pool *parallel.Pool, coll *property.Collation, docs property.DocSource) *Sorter {
	return &Sorter{
		cfg:    cfg,
		pool:   pool,
		coll:   coll,
		docs:   docs,
		logger: slog.Default().With("component", "sort-merge"),
	}
}

func (s *Sorter) WithMetrics(m *metrics.Metrics) *Sorter {
	s.metrics = m
	return s
}

// Sort returns a non-locking buffer with every hit of segs, docs converted to
// global ids, ordered by p. Hits with equal keys keep segment order.
func (s *Sorter) Sort(ctx context.Context, segs []fetch.SegmentHits, defs *hits.MatchInfoDefs, p property.Property) (*hits.Buffer, error) {
	start := time.Now()
	var total int64
	for _, sh := range segs {
		total += sh.Hits.Len()
	}

	strategy := "merge"
	var (
		out *hits.Buffer
		err error
	)
	if total < s.cfg.SingleThreadThreshold || len(segs) < 2 {
		strategy = "single"
		out, err = s.sortSingle(ctx, segs, defs, p, total)
	} else {
		out, err = s.sortMerge(ctx, segs, defs, p, total)
	}
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.SortDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("hits sorted",
		"property", p.Name(),
		"strategy", strategy,
		"hits", total,
		"segments", len(segs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *Sorter) sortSingle(ctx context.Context, segs []fetch.SegmentHits, defs *hits.MatchInfoDefs, p property.Property, total int64) (*hits.Buffer, error) {
	all := hits.New(hits.Options{Capacity: total, Big: total > hits.MaxSmallLen, Defs: defs})
	for _, sh := range segs {
		if err := all.AddAllWithDocOffset(sh.Hits, sh.Segment.DocBase); err != nil {
			return nil, err
		}
	}
	keys, err := property.ComputeKeys(ctx, s.context(0, defs), all, p, s.coll)
	if err != nil {
		return nil, err
	}
	return all.Sort(ctx, keys.Compare, s.cfg.Threads(s.cfg.FetchThreads))
}

func (s *Sorter) context(docBase int32, defs *hits.MatchInfoDefs) property.Context {
	return property.Context{DocBase: docBase, Docs: s.docs, Defs: defs}
}

// sortMerge keys and sorts every segment on its own, then merges the sorted
// runs through a heap of cursors.
func (s *Sorter) sortMerge(ctx context.Context, segs []fetch.SegmentHits, defs *hits.MatchInfoDefs, p property.Property, total int64) (*hits.Buffer, error) {
	runner := parallel.New[fetch.SegmentHits, []*cursor](s.pool, s.cfg.Threads(s.cfg.FetchThreads), func(sh fetch.SegmentHits) int64 {
		return sh.Hits.Len()
	})
	parts, err := runner.Map(ctx, segs, func(ctx context.Context, bucket []fetch.SegmentHits) ([]*cursor, error) {
		cursors := make([]*cursor, 0, len(bucket))
		for _, sh := range bucket {
			if sh.Hits.Len() == 0 {
				continue
			}
			keys, err := property.ComputeKeys(ctx, s.context(sh.Segment.DocBase, defs), sh.Hits, p, s.coll)
			if err != nil {
				return nil, err
			}
			perm, err := sh.Hits.SortedPermutation(ctx, keys.Compare, 1)
			if err != nil {
				return nil, err
			}
			cursors = append(cursors, &cursor{seg: sh.Segment, buf: sh.Hits, keys: keys, perm: perm})
		}
		return cursors, nil
	})
	if err != nil {
		return nil, err
	}

	h := make(cursorHeap, 0, len(segs))
	for _, part := range parts {
		h = append(h, part...)
	}
	heap.Init(&h)

	out := hits.New(hits.Options{Capacity: total, Big: total > hits.MaxSmallLen, Defs: defs})
	var hit hits.EphemeralHit
	for n := 0; len(h) > 0 && !h[0].exhausted(); n++ {
		if n%mergeCancelCheck == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.Cancelled(err)
			}
		}
		c := h[0]
		c.buf.Get(c.current(), &hit)
		hit.ConvertDocToGlobal(c.seg.DocBase)
		if err := out.AddHit(&hit); err != nil {
			return nil, err
		}
		c.pos++
		heap.Fix(&h, 0)
	}
	return out, nil
}

// cursor walks one segment's hits in sorted order.
type cursor struct {
	seg  fetch.Segment
	buf  *hits.Buffer
	keys *property.Keys
	perm []int64
	pos  int
}

func (c *cursor) exhausted() bool { return c.pos >= len(c.perm) }

func (c *cursor) current() int64 { return c.perm[c.pos] }

// cursorHeap orders cursors by their current hit. Exhausted cursors are
// never less than any other, so they sink to the bottom.
type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.exhausted() {
		return false
	}
	if b.exhausted() {
		return true
	}
	if c := property.CompareKeys(a.keys, a.current(), b.keys, b.current()); c != 0 {
		return c < 0
	}
	return a.seg.Ord < b.seg.Ord
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(*cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
