package hits

import (
	"fmt"
	"sync"
)

// Options selects a buffer variant. Locking buffers guard every operation
// with a reader/writer lock and may be appended to while other goroutines
// read them; non-locking buffers assume a single writer followed by
// read-only sharing. Big buffers can exceed MaxSmallLen hits.
type Options struct {
	Locking  bool
	Big      bool
	Capacity int64
	Defs     *MatchInfoDefs
}

// Buffer is an append-only, randomly indexable sequence of hits stored as
// parallel columns.
type Buffer struct {
	mu    *sync.RWMutex
	store storage
	defs  *MatchInfoDefs
}

// New creates an empty buffer of the variant described by opts.
func New(opts Options) *Buffer {
	b := &Buffer{defs: opts.Defs}
	if opts.Big || opts.Capacity > MaxSmallLen {
		b.store = newBigStore()
	} else {
		b.store = newSmallStore(opts.Capacity)
	}
	if opts.Locking {
		b.mu = &sync.RWMutex{}
	}
	return b
}

// FromHits builds a non-locking buffer holding the given hits.
func FromHits(defs *MatchInfoDefs, hs ...Hit) *Buffer {
	b := New(Options{Capacity: int64(len(hs)), Defs: defs})
	for _, h := range hs {
		if err := b.store.add(h.Doc, h.Start, h.End, h.MatchInfo); err != nil {
			panic(err)
		}
	}
	return b
}

func (b *Buffer) rlock() {
	if b.mu != nil {
		b.mu.RLock()
	}
}

func (b *Buffer) runlock() {
	if b.mu != nil {
		b.mu.RUnlock()
	}
}

func (b *Buffer) lock() {
	if b.mu != nil {
		b.mu.Lock()
	}
}

func (b *Buffer) unlock() {
	if b.mu != nil {
		b.mu.Unlock()
	}
}

func (b *Buffer) Defs() *MatchInfoDefs { return b.defs }

func (b *Buffer) Locking() bool { return b.mu != nil }

func (b *Buffer) Big() bool { return b.store.big() }

func (b *Buffer) Len() int64 {
	b.rlock()
	defer b.runlock()
	return b.store.len()
}

func (b *Buffer) HasMatchInfo() bool {
	b.rlock()
	defer b.runlock()
	return b.store.hasMatchInfo()
}

// Add appends one hit.
func (b *Buffer) Add(doc, start, end int32, matchInfo []MatchInfo) error {
	checkHit(doc, start, end)
	b.lock()
	defer b.unlock()
	return b.store.add(doc, start, end, matchInfo)
}

func (b *Buffer) AddHit(h *EphemeralHit) error {
	return b.Add(h.Doc, h.Start, h.End, h.MatchInfo)
}

// AddAll appends every hit of src.
func (b *Buffer) AddAll(src *Buffer) error {
	return b.AddRange(src, 0, -1, 0)
}

// AddAllWithDocOffset appends every hit of src, adding offset to each doc.
// It converts segment-relative hits to global ones.
func (b *Buffer) AddAllWithDocOffset(src *Buffer, offset int32) error {
	return b.AddRange(src, 0, -1, offset)
}

// AddRange appends n hits of src starting at first, adding docOffset to each
// doc. A negative n means up to the end of src. src must not be b.
func (b *Buffer) AddRange(src *Buffer, first, n int64, docOffset int32) error {
	if src == b {
		panic("hits: AddRange from a buffer into itself")
	}
	src.rlock()
	defer src.runlock()
	total := src.store.len()
	if first < 0 || first > total {
		panic(fmt.Sprintf("hits: range start %d out of bounds [0, %d]", first, total))
	}
	if n < 0 || first+n > total {
		n = total - first
	}
	b.lock()
	defer b.unlock()
	b.store.reserve(n)
	for i := first; i < first+n; i++ {
		if err := b.store.add(src.store.doc(i)+docOffset, src.store.start(i), src.store.end(i), src.store.matchInfo(i)); err != nil {
			return err
		}
	}
	return nil
}

// Get fills out with the hit at index i without allocating.
func (b *Buffer) Get(i int64, out *EphemeralHit) {
	b.rlock()
	defer b.runlock()
	b.checkIndex(i)
	out.Doc = b.store.doc(i)
	out.Start = b.store.start(i)
	out.End = b.store.end(i)
	out.MatchInfo = b.store.matchInfo(i)
}

func (b *Buffer) Hit(i int64) Hit {
	var e EphemeralHit
	b.Get(i, &e)
	return e.ToHit()
}

func (b *Buffer) Doc(i int64) int32 {
	b.rlock()
	defer b.runlock()
	b.checkIndex(i)
	return b.store.doc(i)
}

func (b *Buffer) Start(i int64) int32 {
	b.rlock()
	defer b.runlock()
	b.checkIndex(i)
	return b.store.start(i)
}

func (b *Buffer) End(i int64) int32 {
	b.rlock()
	defer b.runlock()
	b.checkIndex(i)
	return b.store.end(i)
}

func (b *Buffer) MatchInfo(i int64) []MatchInfo {
	b.rlock()
	defer b.runlock()
	b.checkIndex(i)
	return b.store.matchInfo(i)
}

// Sublist copies up to n hits starting at first into a new non-locking
// buffer.
func (b *Buffer) Sublist(first, n int64) *Buffer {
	l := b.Len()
	if first > l {
		first = l
	}
	if n < 0 || first+n > l {
		n = l - first
	}
	out := New(Options{Capacity: n, Big: b.Big() && n > MaxSmallLen, Defs: b.defs})
	if err := out.AddRange(b, first, n, 0); err != nil {
		panic(err)
	}
	return out
}

// Clear drops all hits, keeping allocated capacity where possible.
func (b *Buffer) Clear() {
	b.lock()
	defer b.unlock()
	b.store.clear()
}

// ToNonLocking returns a view over the same columns without a lock. The
// caller guarantees b receives no further writes.
func (b *Buffer) ToNonLocking() *Buffer {
	if b.mu == nil {
		return b
	}
	return &Buffer{store: b.store, defs: b.defs}
}

func (b *Buffer) checkIndex(i int64) {
	if i < 0 || i >= b.store.len() {
		panic(fmt.Sprintf("hits: index %d out of range [0, %d)", i, b.store.len()))
	}
}
