// Package query evaluates a parsed query plan over the segments of a corpus
// snapshot. Each segment gets its own two-phase match source: candidate
// documents come from intersecting (AND) or merging (OR) posting lists, and
// phrase clauses are confirmed against word positions.
package query

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// Query is a validated plan, reusable across snapshots.
type Query struct {
	plan *parser.QueryPlan
}

// New fails with ErrInvalidInput when the plan has no indexed word to match.
func New(plan *parser.QueryPlan) (*Query, error) {
	if plan.Empty() {
		return nil, fmt.Errorf("%w: query %q has no searchable words", apperrors.ErrInvalidInput, plan.RawQuery)
	}
	return &Query{plan: plan}, nil
}

// Parse is parser.Parse followed by New.
func Parse(q string) (*Query, error) {
	return New(parser.Parse(q))
}

func (q *Query) Plan() *parser.QueryPlan { return q.plan }

// String renders the normalized query.
func (q *Query) String() string {
	parts := make([]string, 0, len(q.plan.Clauses)+len(q.plan.ExcludeTerms))
	for i, c := range q.plan.Clauses {
		if i > 0 && q.plan.Type == parser.QueryOR {
			parts = append(parts, "OR")
		}
		parts = append(parts, c.String())
	}
	for _, t := range q.plan.ExcludeTerms {
		parts = append(parts, "NOT", t)
	}
	return strings.Join(parts, " ")
}

// Sources returns one match source per segment of snap, in segment order.
// Captures are registered in defs as segments first produce them.
func (q *Query) Sources(snap *indexer.Snapshot, defs *hits.MatchInfoDefs) []fetch.SegmentSource {
	segs := snap.Segments()
	out := make([]fetch.SegmentSource, len(segs))
	for i, seg := range segs {
		out[i] = fetch.SegmentSource{
			Segment: fetch.Segment{Ord: i, DocBase: seg.DocBase, MaxDoc: seg.MaxDoc},
			Source:  newSource(q.plan, seg.Reader, seg.Deleted, defs),
		}
	}
	return out
}
