// Package results exposes the hits of a query to the service layer. A Hits
// value is either backed by a running fetch (and grows as it is read) or by
// a static buffer produced by sorting, filtering or windowing.
package results

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/group"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/sortmerge"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

// Env carries what every Hits derived from one query shares.
type Env struct {
	Config    config.HitsConfig
	Pool      *parallel.Pool
	Collation *property.Collation
	Docs      property.DocSource
	Metrics   *metrics.Metrics
}

// Stats describes how much of the result was stored and counted.
type Stats struct {
	fetch.Snapshot
	Complete bool `json:"complete"`
}

type Hits struct {
	env   Env
	defs  *hits.MatchInfoDefs
	coord *fetch.Coordinator
	// static holds global docs and is set when coord is nil.
	static *hits.Buffer
}

// FromQuery starts a lazily fetched result over the given segment sources.
func FromQuery(env Env, sources []fetch.SegmentSource, defs *hits.MatchInfoDefs) *Hits {
	coord := fetch.NewCoordinator(env.Config, env.Pool, sources, defs).WithMetrics(env.Metrics)
	return &Hits{env: env, defs: defs, coord: coord}
}

// FromBuffer wraps a buffer of hits with global docs.
func FromBuffer(env Env, buf *hits.Buffer) *Hits {
	return &Hits{env: env, defs: buf.Defs(), static: buf.ToNonLocking()}
}

func (h *Hits) Defs() *hits.MatchInfoDefs { return h.defs }

// Available returns the number of hits readable without fetching more.
func (h *Hits) Available() int64 {
	if h.coord == nil {
		return h.static.Len()
	}
	return h.coord.View().Len()
}

// Len fetches every hit and returns how many were stored.
func (h *Hits) Len(ctx context.Context) (int64, error) {
	if h.coord == nil {
		return h.static.Len(), nil
	}
	if _, err := h.coord.EnsureAvailable(ctx, -1); err != nil {
		return 0, err
	}
	return h.coord.View().Len(), nil
}

// SizeAtLeast reports whether there are at least n hits, fetching only as
// far as needed.
func (h *Hits) SizeAtLeast(ctx context.Context, n int64) (bool, error) {
	if h.coord == nil {
		return h.static.Len() >= n, nil
	}
	return h.coord.EnsureAvailable(ctx, n)
}

// Get returns hit i with a global doc.
func (h *Hits) Get(ctx context.Context, i int64) (hits.Hit, error) {
	var e hits.EphemeralHit
	if err := h.get(ctx, i, &e); err != nil {
		return hits.Hit{}, err
	}
	return e.ToHit(), nil
}

func (h *Hits) get(ctx context.Context, i int64, out *hits.EphemeralHit) error {
	if h.coord != nil {
		return h.coord.View().Get(ctx, i, out)
	}
	if i < 0 || i >= h.static.Len() {
		return fmt.Errorf("%w: %d of %d", apperrors.ErrOutOfRange, i, h.static.Len())
	}
	h.static.Get(i, out)
	return nil
}

// Iterate calls fn for each hit in order, fetching progressively, until fn
// returns false or the hits run out. The hit passed to fn is reused.
func (h *Hits) Iterate(ctx context.Context, fn func(i int64, hit *hits.EphemeralHit) bool) error {
	var e hits.EphemeralHit
	for i := int64(0); ; i++ {
		if err := h.get(ctx, i, &e); err != nil {
			if errors.Is(err, apperrors.ErrOutOfRange) {
				return nil
			}
			return err
		}
		if !fn(i, &e) {
			return nil
		}
	}
}

// Window returns up to n hits starting at first as a static result.
func (h *Hits) Window(ctx context.Context, first, n int64) (*Hits, error) {
	if first < 0 || n < 0 {
		return nil, fmt.Errorf("%w: window first=%d number=%d", apperrors.ErrInvalidInput, first, n)
	}
	if h.coord == nil {
		return FromBuffer(h.env, h.static.Sublist(first, n)), nil
	}
	if n > math.MaxInt64-first {
		n = math.MaxInt64 - first
	}
	if _, err := h.coord.EnsureAvailable(ctx, first+n); err != nil {
		return nil, err
	}
	avail := h.coord.View().Len()
	if first > avail {
		first = avail
	}
	n = min(n, avail-first)
	out := hits.New(hits.Options{Capacity: n, Defs: h.defs})
	var e hits.EphemeralHit
	for i := first; i < first+n; i++ {
		if err := h.coord.View().Get(ctx, i, &e); err != nil {
			return nil, err
		}
		if err := out.AddHit(&e); err != nil {
			return nil, err
		}
	}
	return FromBuffer(h.env, out), nil
}

// PerSegment fetches everything and returns the hits of each segment with
// segment-relative docs. A static result is a single segment at base 0.
func (h *Hits) PerSegment(ctx context.Context) ([]fetch.SegmentHits, error) {
	if h.coord == nil {
		return []fetch.SegmentHits{{
			Segment: fetch.Segment{MaxDoc: maxDoc(h.static)},
			Hits:    h.static,
		}}, nil
	}
	return h.coord.SegmentBuffers(ctx)
}

func maxDoc(b *hits.Buffer) int32 {
	if b.Len() == 0 {
		return 0
	}
	return b.Doc(b.Len()-1) + 1
}

// Static fetches everything and returns a static result in view order.
func (h *Hits) Static(ctx context.Context) (*Hits, error) {
	if h.coord == nil {
		return h, nil
	}
	n, err := h.Len(ctx)
	if err != nil {
		return nil, err
	}
	return h.Window(ctx, 0, n)
}

// Sorted returns all hits ordered by p.
func (h *Hits) Sorted(ctx context.Context, p property.Property) (*Hits, error) {
	segs, err := h.PerSegment(ctx)
	if err != nil {
		return nil, err
	}
	sorter := sortmerge.New(h.env.Config, h.env.Pool, h.env.Collation, h.env.Docs).WithMetrics(h.env.Metrics)
	buf, err := sorter.Sort(ctx, segs, h.defs, p)
	if err != nil {
		return nil, err
	}
	return FromBuffer(h.env, buf), nil
}

// Grouped groups all hits by p keeping at most maxStored hits per group.
func (h *Hits) Grouped(ctx context.Context, p property.Property, maxStored int64) (*group.Groups, error) {
	segs, err := h.PerSegment(ctx)
	if err != nil {
		return nil, err
	}
	grouper := group.New(h.env.Config, h.env.Pool, h.env.Docs).WithMetrics(h.env.Metrics)
	return grouper.GroupBy(ctx, segs, h.defs, p, maxStored)
}

// Filter keeps the hits whose value of p equals v, in segment order.
func (h *Hits) Filter(ctx context.Context, p property.Property, v property.Value) (*Hits, error) {
	segs, err := h.PerSegment(ctx)
	if err != nil {
		return nil, err
	}
	keep := func(ctx context.Context, sh fetch.SegmentHits) (*hits.Buffer, error) {
		pc := property.Context{DocBase: sh.Segment.DocBase, Docs: h.env.Docs, Defs: h.defs}
		out := hits.New(hits.Options{Defs: h.defs})
		var e hits.EphemeralHit
		for i := int64(0); i < sh.Hits.Len(); i++ {
			if i%1024 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, apperrors.Cancelled(err)
				}
			}
			if p.Value(pc, sh.Hits, i) != v {
				continue
			}
			sh.Hits.Get(i, &e)
			e.ConvertDocToGlobal(sh.Segment.DocBase)
			if err := out.AddHit(&e); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	var total int64
	for _, sh := range segs {
		total += sh.Hits.Len()
	}
	parts := make([]*hits.Buffer, len(segs))
	if total < h.env.Config.SingleThreadThreshold || len(segs) < 2 {
		for i, sh := range segs {
			if parts[i], err = keep(ctx, sh); err != nil {
				return nil, err
			}
		}
	} else {
		type indexed struct {
			pos int
			sh  fetch.SegmentHits
		}
		items := make([]indexed, len(segs))
		for i, sh := range segs {
			items[i] = indexed{pos: i, sh: sh}
		}
		runner := parallel.New[indexed, struct{}](h.env.Pool, h.env.Config.Threads(h.env.Config.FetchThreads), func(it indexed) int64 {
			return it.sh.Hits.Len()
		})
		err = runner.ForEach(ctx, items, func(ctx context.Context, bucket []indexed) error {
			for _, it := range bucket {
				buf, err := keep(ctx, it.sh)
				if err != nil {
					return err
				}
				parts[it.pos] = buf
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := hits.New(hits.Options{Defs: h.defs})
	for _, part := range parts {
		if err := out.AddAll(part); err != nil {
			return nil, err
		}
	}
	return FromBuffer(h.env, out), nil
}

// CountDocs fetches everything and returns the number of distinct documents
// among the stored hits.
func (h *Hits) CountDocs(ctx context.Context) (uint64, error) {
	segs, err := h.PerSegment(ctx)
	if err != nil {
		return 0, err
	}
	docs := roaring.New()
	for _, sh := range segs {
		for i := int64(0); i < sh.Hits.Len(); i++ {
			docs.Add(uint32(sh.Segment.GlobalDoc(sh.Hits.Doc(i))))
		}
	}
	return docs.GetCardinality(), nil
}

// ForDoc returns the hits of one global document in their original order.
func (h *Hits) ForDoc(ctx context.Context, doc int32) (*Hits, error) {
	segs, err := h.PerSegment(ctx)
	if err != nil {
		return nil, err
	}
	out := hits.New(hits.Options{Defs: h.defs})
	var e hits.EphemeralHit
	for _, sh := range segs {
		local := doc - sh.Segment.DocBase
		if h.coord != nil && (local < 0 || local >= sh.Segment.MaxDoc) {
			continue
		}
		for i := int64(0); i < sh.Hits.Len(); i++ {
			if sh.Hits.Doc(i) != local {
				continue
			}
			sh.Hits.Get(i, &e)
			e.ConvertDocToGlobal(sh.Segment.DocBase)
			if err := out.AddHit(&e); err != nil {
				return nil, err
			}
		}
	}
	return FromBuffer(h.env, out), nil
}

// Stats returns the fetch totals so far. A static result reports its length
// as both stored and counted.
func (h *Hits) Stats() Stats {
	if h.coord == nil {
		n := h.static.Len()
		return Stats{Snapshot: fetch.Snapshot{Processed: n, Counted: n}, Complete: true}
	}
	return Stats{Snapshot: h.coord.Stats(), Complete: h.coord.View().Complete()}
}

// Err returns the first segment error seen while fetching.
func (h *Hits) Err() error {
	if h.coord == nil {
		return nil
	}
	return h.coord.Err()
}

// Close releases the match sources of an unfinished fetch.
func (h *Hits) Close() {
	if h.coord != nil {
		h.coord.Close()
	}
}
