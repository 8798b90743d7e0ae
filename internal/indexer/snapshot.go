package indexer

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/segment"
)

// SegmentRef is one segment of a snapshot. Global doc ids of its documents
// are DocBase plus the local id.
type SegmentRef struct {
	Reader  *segment.Reader
	DocBase int32
	MaxDoc  int32
	Deleted *roaring.Bitmap
}

// Snapshot is an immutable list of segments with contiguous doc bases. It
// stays readable while the engine flushes or deletes; deletions made after
// it was taken are not visible through it.
type Snapshot struct {
	segments []SegmentRef
	maxDoc   int32
}

func newSnapshot(readers []*segment.Reader) *Snapshot {
	s := &Snapshot{segments: make([]SegmentRef, 0, len(readers))}
	for _, r := range readers {
		s.append(r, r.Deleted())
	}
	return s
}

func (s *Snapshot) append(r *segment.Reader, deleted *roaring.Bitmap) {
	n := int32(r.DocCount())
	s.segments = append(s.segments, SegmentRef{
		Reader:  r,
		DocBase: s.maxDoc,
		MaxDoc:  n,
		Deleted: deleted,
	})
	s.maxDoc += n
}

// Concat joins snapshots in order, rebasing their segments.
func Concat(snaps ...*Snapshot) *Snapshot {
	out := &Snapshot{}
	for _, snap := range snaps {
		for _, seg := range snap.segments {
			out.append(seg.Reader, seg.Deleted)
		}
	}
	return out
}

func (s *Snapshot) Segments() []SegmentRef {
	return s.segments
}

// MaxDoc is one past the highest global doc id.
func (s *Snapshot) MaxDoc() int32 {
	return s.maxDoc
}

// LiveDocs counts documents not deleted.
func (s *Snapshot) LiveDocs() uint64 {
	var n uint64
	for _, seg := range s.segments {
		n += uint64(seg.MaxDoc) - seg.Deleted.GetCardinality()
	}
	return n
}

func (s *Snapshot) locate(doc int32) (SegmentRef, int32, bool) {
	i := sort.Search(len(s.segments), func(i int) bool {
		return s.segments[i].DocBase+s.segments[i].MaxDoc > doc
	})
	if doc < 0 || i >= len(s.segments) {
		return SegmentRef{}, 0, false
	}
	seg := s.segments[i]
	return seg, doc - seg.DocBase, true
}

// ExternalID returns the id a global doc was ingested with, or "" when doc
// is out of range.
func (s *Snapshot) ExternalID(doc int32) string {
	seg, local, ok := s.locate(doc)
	if !ok {
		return ""
	}
	return seg.Reader.Document(local).ID
}

// Words returns the words at positions [start, end) of a global doc,
// clipped to the document.
func (s *Snapshot) Words(doc int32, start, end int32) []string {
	seg, local, ok := s.locate(doc)
	if !ok {
		return nil
	}
	words := seg.Reader.Document(local).Words
	start = max(start, 0)
	end = min(end, int32(len(words)))
	if start >= end {
		return nil
	}
	return words[start:end]
}
