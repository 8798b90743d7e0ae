package query

import (
	"cmp"
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/parser"
)

// segmentIndex is what a source reads from one segment.
type segmentIndex interface {
	Search(term string) (index.PostingList, error)
	Document(doc int32) index.Document
}

// cursor walks a posting list in doc order.
type cursor struct {
	postings index.PostingList
	i        int
}

// seek moves to the first posting with Doc >= target and returns its doc.
func (c *cursor) seek(target int32) int32 {
	if c.i < len(c.postings) && c.postings[c.i].Doc >= target {
		return c.postings[c.i].Doc
	}
	rest := c.postings[c.i:]
	c.i += sort.Search(len(rest), func(k int) bool { return rest[k].Doc >= target })
	if c.i >= len(c.postings) {
		return fetch.NoMoreDocs
	}
	return c.postings[c.i].Doc
}

func (c *cursor) positions() []int32 {
	return c.postings[c.i].Positions
}

// slot is one indexed word of a clause at a fixed offset from its start.
type slot struct {
	cursor
	term   string
	offset int32
}

type clause struct {
	label  string
	length int32
	slots  []slot
	// capture is the match info index of label, -1 until the first hit.
	capture int
	doc     int32
}

func newClause(c parser.Clause) *clause {
	cl := &clause{label: c.Label, length: c.Len(), capture: -1, doc: -1}
	for off, term := range c.Terms {
		if term != "" {
			cl.slots = append(cl.slots, slot{term: term, offset: int32(off)})
		}
	}
	return cl
}

// advance moves to the first doc >= target containing every slot.
func (c *clause) advance(target int32) int32 {
	for {
		aligned := true
		for i := range c.slots {
			d := c.slots[i].seek(target)
			if d == fetch.NoMoreDocs {
				c.doc = fetch.NoMoreDocs
				return c.doc
			}
			if d != target {
				target = d
				aligned = false
				break
			}
		}
		if aligned {
			c.doc = target
			return target
		}
	}
}

// collect appends the matches of the clause in the current doc, in start
// order.
func (c *clause) collect(docLen int32, out []match, ci int) []match {
	first := c.slots[0]
	for _, p := range first.positions() {
		start := p - first.offset
		if start < 0 || start+c.length > docLen {
			continue
		}
		ok := true
		for _, s := range c.slots[1:] {
			if _, found := slices.BinarySearch(s.positions(), start+s.offset); !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, match{start: start, end: start + c.length, clause: ci})
		}
	}
	return out
}

type match struct {
	start, end int32
	clause     int
}

// source is the MatchSource of one query on one segment. Posting lists are
// read on the first advance so I/O errors surface through the fetch loop.
type source struct {
	idx     segmentIndex
	deleted *roaring.Bitmap
	defs    *hits.MatchInfoDefs
	and     bool
	clauses []*clause
	exclude []slot
	loaded  bool

	doc     int32
	matches []match
	next    int
	cur     match
}

func newSource(plan *parser.QueryPlan, idx segmentIndex, deleted *roaring.Bitmap, defs *hits.MatchInfoDefs) *source {
	if deleted == nil {
		deleted = roaring.New()
	}
	s := &source{
		idx:     idx,
		deleted: deleted,
		defs:    defs,
		and:     plan.Type == parser.QueryAND,
		doc:     -1,
	}
	for _, c := range plan.Clauses {
		s.clauses = append(s.clauses, newClause(c))
	}
	for _, t := range plan.ExcludeTerms {
		s.exclude = append(s.exclude, slot{term: t})
	}
	return s
}

func (s *source) load() error {
	if s.loaded {
		return nil
	}
	read := func(sl *slot) error {
		postings, err := s.idx.Search(sl.term)
		if err != nil {
			return fmt.Errorf("loading postings for %q: %w", sl.term, err)
		}
		sl.postings = postings
		return nil
	}
	for _, c := range s.clauses {
		for i := range c.slots {
			if err := read(&c.slots[i]); err != nil {
				return err
			}
		}
	}
	for i := range s.exclude {
		if err := read(&s.exclude[i]); err != nil {
			return err
		}
	}
	s.loaded = true
	return nil
}

func (s *source) AdvanceApproximate() (int32, error) {
	if s.doc == fetch.NoMoreDocs {
		return s.doc, nil
	}
	if err := s.load(); err != nil {
		return 0, err
	}
	s.matches = s.matches[:0]
	s.next = 0
	target := s.doc + 1
	for {
		doc := s.candidate(target)
		if doc == fetch.NoMoreDocs {
			s.doc = doc
			return doc, nil
		}
		if s.deleted.Contains(uint32(doc)) || s.excluded(doc) {
			target = doc + 1
			continue
		}
		s.doc = doc
		return doc, nil
	}
}

func (s *source) candidate(target int32) int32 {
	if !s.and {
		best := fetch.NoMoreDocs
		for _, c := range s.clauses {
			d := c.doc
			if d < target {
				d = c.advance(target)
			}
			best = min(best, d)
		}
		return best
	}
	for {
		aligned := true
		for _, c := range s.clauses {
			d := c.doc
			if d < target {
				d = c.advance(target)
			}
			if d == fetch.NoMoreDocs {
				return d
			}
			if d != target {
				target = d
				aligned = false
				break
			}
		}
		if aligned {
			return target
		}
	}
}

func (s *source) excluded(doc int32) bool {
	for i := range s.exclude {
		if s.exclude[i].seek(doc) == doc {
			return true
		}
	}
	return false
}

// ConfirmMatch checks positions: every clause (AND) or some clause (OR)
// must match in the candidate doc.
func (s *source) ConfirmMatch() (bool, error) {
	docLen := int32(len(s.idx.Document(s.doc).Words))
	s.matches = s.matches[:0]
	for ci, c := range s.clauses {
		if c.doc != s.doc {
			continue
		}
		before := len(s.matches)
		s.matches = c.collect(docLen, s.matches, ci)
		if s.and && len(s.matches) == before {
			s.matches = s.matches[:0]
			return false, nil
		}
	}
	if len(s.matches) == 0 {
		return false, nil
	}
	slices.SortStableFunc(s.matches, func(a, b match) int {
		if c := cmp.Compare(a.start, b.start); c != 0 {
			return c
		}
		return cmp.Compare(a.end, b.end)
	})
	s.matches = slices.CompactFunc(s.matches, func(a, b match) bool {
		return a.start == b.start && a.end == b.end
	})
	return true, nil
}

func (s *source) NextMatchPosition() (int32, int32, error) {
	if s.next >= len(s.matches) {
		return fetch.NoMorePositions, fetch.NoMorePositions, nil
	}
	s.cur = s.matches[s.next]
	s.next++
	return s.cur.start, s.cur.end, nil
}

// PopulateMatchInfo records the span of the current match under its
// clause's label, registering the label on first use.
func (s *source) PopulateMatchInfo(out []hits.MatchInfo) []hits.MatchInfo {
	c := s.clauses[s.cur.clause]
	if c.label == "" {
		return out
	}
	if c.capture < 0 {
		c.capture = s.defs.Register(c.label, hits.KindSpan)
	}
	for len(out) <= c.capture {
		out = append(out, nil)
	}
	out[c.capture] = hits.Span{Start: s.cur.start, End: s.cur.end}
	return out
}

func (s *source) Close() error {
	for _, c := range s.clauses {
		for i := range c.slots {
			c.slots[i].postings = nil
		}
	}
	s.exclude = nil
	s.doc = fetch.NoMoreDocs
	return nil
}
