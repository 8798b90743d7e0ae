// Package group partitions hits by a property value. Each group keeps a
// capped sample of its hits and the exact number of hits it holds.
package group

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

const cancelCheckInterval = 1024

// Group is one distinct property value. Hits holds at most the configured
// number of sample hits with global docs; Total counts all of them.
type Group struct {
	Value property.Value
	Hits  *hits.Buffer
	Total int64
}

// Groups is the result of grouping. Groups keep the order in which their
// values were first seen.
type Groups struct {
	Property  property.Property
	groups    []*Group
	byValue   map[property.Value]*Group
	totalHits int64
	maxStored int64
	maxGroups int
	defs      *hits.MatchInfoDefs
}

func newGroups(p property.Property, defs *hits.MatchInfoDefs, maxStored int64, maxGroups int) *Groups {
	return &Groups{
		Property:  p,
		byValue:   make(map[property.Value]*Group),
		maxStored: maxStored,
		maxGroups: maxGroups,
		defs:      defs,
	}
}

func (g *Groups) Len() int { return len(g.groups) }

func (g *Groups) Get(i int) *Group { return g.groups[i] }

// Lookup returns the group for v, or nil.
func (g *Groups) Lookup(v property.Value) *Group { return g.byValue[v] }

// TotalHits is the sum of every group's Total.
func (g *Groups) TotalHits() int64 { return g.totalHits }

// All returns the groups in first-seen order.
func (g *Groups) All() []*Group {
	return slices.Clone(g.groups)
}

// BySize returns the groups ordered by descending Total, ties by value.
func (g *Groups) BySize() []*Group {
	out := slices.Clone(g.groups)
	slices.SortStableFunc(out, func(a, b *Group) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return a.Value.Compare(b.Value)
	})
	return out
}

// ByValue returns the groups ordered by their value.
func (g *Groups) ByValue() []*Group {
	out := slices.Clone(g.groups)
	slices.SortStableFunc(out, func(a, b *Group) int { return a.Value.Compare(b.Value) })
	return out
}

func (g *Groups) group(v property.Value) (*Group, error) {
	if grp, ok := g.byValue[v]; ok {
		return grp, nil
	}
	if g.maxGroups > 0 && len(g.groups) >= g.maxGroups {
		return nil, fmt.Errorf("%w: more than %d distinct values of %s", apperrors.ErrTooManyGroups, g.maxGroups, g.Property.Name())
	}
	grp := &Group{Value: v, Hits: hits.New(hits.Options{Defs: g.defs})}
	g.byValue[v] = grp
	g.groups = append(g.groups, grp)
	return grp, nil
}

func (g *Groups) add(v property.Value, h *hits.EphemeralHit) error {
	grp, err := g.group(v)
	if err != nil {
		return err
	}
	grp.Total++
	g.totalHits++
	if g.maxStored < 0 || grp.Hits.Len() < g.maxStored {
		return grp.Hits.AddHit(h)
	}
	return nil
}

// merge folds part into g: samples are concatenated up to the cap and
// totals summed.
func (g *Groups) merge(part *Groups) error {
	for _, pg := range part.groups {
		grp, err := g.group(pg.Value)
		if err != nil {
			return err
		}
		grp.Total += pg.Total
		g.totalHits += pg.Total
		room := pg.Hits.Len()
		if g.maxStored >= 0 {
			room = min(room, g.maxStored-grp.Hits.Len())
		}
		if room > 0 {
			if err := grp.Hits.AddRange(pg.Hits, 0, room, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

type Grouper struct {
	cfg     config.HitsConfig
	pool    *parallel.Pool
	docs    property.DocSource
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(cfg config.HitsConfig, pool *parallel.Pool, docs property.DocSource) *Grouper {
	return &Grouper{
		cfg:    cfg,
		pool:   pool,
		docs:   docs,
		logger: slog.Default().With("component", "group-reduce"),
	}
}

func (gr *Grouper) WithMetrics(m *metrics.Metrics) *Grouper {
	gr.metrics = m
	return gr
}

// GroupBy groups the hits of segs by p, keeping at most maxStored sample hits
// per group (negative keeps all). It fails with ErrTooManyGroups when the
// number of distinct values exceeds the configured limit.
func (gr *Grouper) GroupBy(ctx context.Context, segs []fetch.SegmentHits, defs *hits.MatchInfoDefs, p property.Property, maxStored int64) (*Groups, error) {
	start := time.Now()
	var total int64
	for _, sh := range segs {
		total += sh.Hits.Len()
	}

	strategy := "parallel"
	var (
		out *Groups
		err error
	)
	if total < gr.cfg.SingleThreadThreshold || len(segs) < 2 {
		strategy = "single"
		out = newGroups(p, defs, maxStored, gr.cfg.MaxGroups)
		for _, sh := range segs {
			if err = gr.addSegment(ctx, out, sh, defs, p); err != nil {
				break
			}
		}
	} else {
		runner := parallel.New[fetch.SegmentHits, *Groups](gr.pool, gr.cfg.Threads(gr.cfg.GroupThreads), func(sh fetch.SegmentHits) int64 {
			return sh.Hits.Len()
		})
		out, err = runner.MapReduce(ctx, segs,
			func(ctx context.Context, bucket []fetch.SegmentHits) (*Groups, error) {
				part := newGroups(p, defs, maxStored, gr.cfg.MaxGroups)
				for _, sh := range bucket {
					if err := gr.addSegment(ctx, part, sh, defs, p); err != nil {
						return nil, err
					}
				}
				return part, nil
			},
			func(acc, part *Groups) (*Groups, error) {
				return acc, acc.merge(part)
			},
		)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = newGroups(p, defs, maxStored, gr.cfg.MaxGroups)
	}

	if gr.metrics != nil {
		gr.metrics.GroupDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
		gr.metrics.GroupsCount.Observe(float64(out.Len()))
	}
	gr.logger.Debug("hits grouped",
		"property", p.Name(),
		"strategy", strategy,
		"hits", total,
		"groups", out.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (gr *Grouper) addSegment(ctx context.Context, into *Groups, sh fetch.SegmentHits, defs *hits.MatchInfoDefs, p property.Property) error {
	pc := property.Context{DocBase: sh.Segment.DocBase, Docs: gr.docs, Defs: defs}
	var h hits.EphemeralHit
	n := sh.Hits.Len()
	for i := int64(0); i < n; i++ {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return apperrors.Cancelled(err)
			}
		}
		v := p.Value(pc, sh.Hits, i)
		sh.Hits.Get(i, &h)
		h.ConvertDocToGlobal(sh.Segment.DocBase)
		if err := into.add(v, &h); err != nil {
			return err
		}
	}
	return nil
}
