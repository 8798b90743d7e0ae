package hits

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// MaxSmallLen is the largest number of hits a 32-bit buffer can hold.
const MaxSmallLen int64 = math.MaxInt32

const chunkBits = 16
const chunkSize = 1 << chunkBits

// storage is the column layout behind a Buffer. The doc, start and end
// columns always have equal length; the match info column is either empty or
// exactly as long as the others.
type storage interface {
	len() int64
	add(doc, start, end int32, mi []MatchInfo) error
	doc(i int64) int32
	start(i int64) int32
	end(i int64) int32
	matchInfo(i int64) []MatchInfo
	hasMatchInfo() bool
	reserve(n int64)
	clear()
	big() bool
}

// smallStore keeps flat columns indexed by int32-range positions.
type smallStore struct {
	docs   []int32
	starts []int32
	ends   []int32
	infos  [][]MatchInfo
	limit  int64
}

func newSmallStore(capacity int64) *smallStore {
	if capacity < 0 || capacity > MaxSmallLen {
		capacity = 0
	}
	return &smallStore{
		docs:   make([]int32, 0, capacity),
		starts: make([]int32, 0, capacity),
		ends:   make([]int32, 0, capacity),
		limit:  MaxSmallLen,
	}
}

func (s *smallStore) len() int64 { return int64(len(s.docs)) }

func (s *smallStore) add(doc, start, end int32, mi []MatchInfo) error {
	n := int64(len(s.docs))
	if n >= s.limit {
		return fmt.Errorf("%w: 32-bit buffer holds at most %d hits", apperrors.ErrIndexTooLarge, s.limit)
	}
	if mi != nil && len(s.infos) == 0 && n > 0 {
		s.infos = make([][]MatchInfo, n, cap(s.docs))
	}
	s.docs = append(s.docs, doc)
	s.starts = append(s.starts, start)
	s.ends = append(s.ends, end)
	if mi != nil || len(s.infos) > 0 {
		s.infos = append(s.infos, mi)
	}
	return nil
}

func (s *smallStore) doc(i int64) int32   { return s.docs[i] }
func (s *smallStore) start(i int64) int32 { return s.starts[i] }
func (s *smallStore) end(i int64) int32   { return s.ends[i] }

func (s *smallStore) matchInfo(i int64) []MatchInfo {
	if len(s.infos) == 0 {
		return nil
	}
	return s.infos[i]
}

func (s *smallStore) hasMatchInfo() bool { return len(s.infos) > 0 }

func (s *smallStore) reserve(n int64) {
	need := int64(len(s.docs)) + n
	if need <= int64(cap(s.docs)) || need > s.limit {
		return
	}
	grow := func(col []int32) []int32 {
		out := make([]int32, len(col), need)
		copy(out, col)
		return out
	}
	s.docs = grow(s.docs)
	s.starts = grow(s.starts)
	s.ends = grow(s.ends)
}

func (s *smallStore) clear() {
	s.docs = s.docs[:0]
	s.starts = s.starts[:0]
	s.ends = s.ends[:0]
	s.infos = nil
}

func (s *smallStore) big() bool { return false }

// bigStore keeps columns in fixed-size chunks so it can grow past the 32-bit
// limit without ever copying existing hits.
type bigStore struct {
	docs   [][]int32
	starts [][]int32
	ends   [][]int32
	infos  [][][]MatchInfo
	n      int64
	withMI bool
}

func newBigStore() *bigStore {
	return &bigStore{}
}

func (b *bigStore) len() int64 { return b.n }

func (b *bigStore) add(doc, start, end int32, mi []MatchInfo) error {
	if mi != nil && !b.withMI {
		b.withMI = true
		b.infos = make([][][]MatchInfo, len(b.docs))
		for c := range b.docs {
			b.infos[c] = make([][]MatchInfo, len(b.docs[c]), chunkSize)
		}
	}
	c := b.n >> chunkBits
	if c == int64(len(b.docs)) {
		b.docs = append(b.docs, make([]int32, 0, chunkSize))
		b.starts = append(b.starts, make([]int32, 0, chunkSize))
		b.ends = append(b.ends, make([]int32, 0, chunkSize))
		if b.withMI {
			b.infos = append(b.infos, make([][]MatchInfo, 0, chunkSize))
		}
	}
	b.docs[c] = append(b.docs[c], doc)
	b.starts[c] = append(b.starts[c], start)
	b.ends[c] = append(b.ends[c], end)
	if b.withMI {
		b.infos[c] = append(b.infos[c], mi)
	}
	b.n++
	return nil
}

func (b *bigStore) doc(i int64) int32   { return b.docs[i>>chunkBits][i&(chunkSize-1)] }
func (b *bigStore) start(i int64) int32 { return b.starts[i>>chunkBits][i&(chunkSize-1)] }
func (b *bigStore) end(i int64) int32   { return b.ends[i>>chunkBits][i&(chunkSize-1)] }

func (b *bigStore) matchInfo(i int64) []MatchInfo {
	if !b.withMI {
		return nil
	}
	return b.infos[i>>chunkBits][i&(chunkSize-1)]
}

func (b *bigStore) hasMatchInfo() bool { return b.withMI }

func (b *bigStore) reserve(int64) {}

func (b *bigStore) clear() {
	b.docs, b.starts, b.ends, b.infos = nil, nil, nil, nil
	b.n = 0
	b.withMI = false
}

func (b *bigStore) big() bool { return true }
