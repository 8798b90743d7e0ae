// Package fetch drives per-segment match sources, publishes their hits into
// a global view as they arrive, and coordinates callers that need at least N
// hits to be available.
package fetch

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
)

const (
	// NoMoreDocs is returned by AdvanceApproximate once a source is exhausted.
	NoMoreDocs int32 = math.MaxInt32
	// NoMorePositions is returned by NextMatchPosition after the last match
	// in the current document.
	NoMorePositions int32 = math.MaxInt32
)

// MatchSource is a two-phase match iterator over one segment. Matches must
// be produced in ascending (doc, start, end) order.
type MatchSource interface {
	// AdvanceApproximate moves to the next candidate document.
	AdvanceApproximate() (int32, error)
	// ConfirmMatch reports whether the current candidate really matches.
	ConfirmMatch() (bool, error)
	// NextMatchPosition returns the next match in the confirmed document.
	NextMatchPosition() (start, end int32, err error)
	// PopulateMatchInfo returns the captures of the current match, reusing
	// out when possible. It returns nil when the query captures nothing.
	PopulateMatchInfo(out []hits.MatchInfo) []hits.MatchInfo
	Close() error
}

// Segment identifies one independently searched index partition.
type Segment struct {
	Ord     int
	DocBase int32
	MaxDoc  int32
}

// GlobalDoc converts a segment-relative document id.
func (s Segment) GlobalDoc(doc int32) int32 {
	return s.DocBase + doc
}

// SegmentSource pairs a segment with the match source evaluating the query
// on it.
type SegmentSource struct {
	Segment Segment
	Source  MatchSource
}

// SegmentHits is the finished, non-locking hit buffer of one segment. Docs
// in Hits are segment-relative.
type SegmentHits struct {
	Segment Segment
	Hits    *hits.Buffer
}
