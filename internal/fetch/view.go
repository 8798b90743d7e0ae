package fetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// indexInterval is the number of global hits between two sparse index
// entries.
const indexInterval = 100

// Stretch is a contiguous run of one segment's hits spliced into the view.
type Stretch struct {
	Segment Segment
	// Offset is the position of the first hit in the segment buffer.
	Offset int64
	// GlobalOffset is the position of the first hit in the view.
	GlobalOffset int64
	Len          int64
}

type stretch struct {
	Stretch
	buf *hits.Buffer
}

// View is the incrementally growing concatenation of segment buffers. It can
// be read while segments are still being fetched; stretches are only ever
// appended.
type View struct {
	mu        sync.RWMutex
	stretches []stretch
	// index[k] is the stretch holding global hit k*indexInterval.
	index []int

	length   atomic.Int64
	complete atomic.Bool

	ensure func(ctx context.Context, n int64) (bool, error)
}

func newView() *View {
	return &View{}
}

// Len returns the number of hits currently available.
func (v *View) Len() int64 { return v.length.Load() }

// Complete reports whether the view will not grow any further.
func (v *View) Complete() bool { return v.complete.Load() }

func (v *View) markComplete() { v.complete.Store(true) }

// addStretch publishes n hits of buf starting at offset. Callers publishing
// the same segment must do so in order.
func (v *View) addStretch(seg Segment, buf *hits.Buffer, offset, n int64) {
	if n <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	global := v.length.Load()
	v.stretches = append(v.stretches, stretch{
		Stretch: Stretch{Segment: seg, Offset: offset, GlobalOffset: global, Len: n},
		buf:     buf,
	})
	last := len(v.stretches) - 1
	for int64(len(v.index))*indexInterval < global+n {
		v.index = append(v.index, last)
	}
	v.length.Store(global + n)
}

// Stretches returns a copy of the published stretches in global order.
func (v *View) Stretches() []Stretch {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Stretch, len(v.stretches))
	for i, s := range v.stretches {
		out[i] = s.Stretch
	}
	return out
}

// Get fills out with global hit i, fetching more hits first if needed. The
// doc of out is global.
func (v *View) Get(ctx context.Context, i int64, out *hits.EphemeralHit) error {
	if i < 0 {
		return fmt.Errorf("%w: %d", apperrors.ErrOutOfRange, i)
	}
	if v.ensure != nil && i >= v.Len() {
		if _, err := v.ensure(ctx, i+1); err != nil {
			return err
		}
	}
	if i >= v.Len() {
		return fmt.Errorf("%w: %d of %d", apperrors.ErrOutOfRange, i, v.Len())
	}
	v.get(i, out)
	return nil
}

func (v *View) get(i int64, out *hits.EphemeralHit) {
	v.mu.RLock()
	s := v.index[i/indexInterval]
	for v.stretches[s].GlobalOffset+v.stretches[s].Len <= i {
		s++
	}
	st := v.stretches[s]
	v.mu.RUnlock()
	st.buf.Get(st.Offset+(i-st.GlobalOffset), out)
	out.ConvertDocToGlobal(st.Segment.DocBase)
}
