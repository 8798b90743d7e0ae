package sortmerge

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// segments builds len(sizes) segments of 1000 docs each; segment s holds
// sizes[s] hits with scrambled start positions.
func segments(sizes ...int) []fetch.SegmentHits {
	out := make([]fetch.SegmentHits, len(sizes))
	for s, n := range sizes {
		buf := hits.New(hits.Options{})
		for j := 0; j < n; j++ {
			start := int32((j*7 + s*3) % 13)
			if err := buf.Add(int32(j/3), start, start+1+int32(j%2), nil); err != nil {
				panic(err)
			}
		}
		out[s] = fetch.SegmentHits{
			Segment: fetch.Segment{Ord: s, DocBase: int32(s * 1000), MaxDoc: 1000},
			Hits:    buf,
		}
	}
	return out
}

func hitStrings(b *hits.Buffer) []string {
	out := make([]string, b.Len())
	for i := range out {
		out[i] = b.Hit(int64(i)).String()
	}
	return out
}

func globalHits(segs []fetch.SegmentHits) []string {
	var out []string
	for _, sh := range segs {
		for i := int64(0); i < sh.Hits.Len(); i++ {
			h := sh.Hits.Hit(i)
			h.Doc += sh.Segment.DocBase
			out = append(out, h.String())
		}
	}
	return out
}

func newSorter(threshold int64) *Sorter {
	cfg := config.Default().Hits
	cfg.SingleThreadThreshold = threshold
	return New(cfg, parallel.NewPool(4), nil, nil)
}

func assertSortedBy(t *testing.T, out *hits.Buffer, p property.Property) {
	t.Helper()
	keys, err := property.ComputeKeys(context.Background(), property.Context{}, out, p, nil)
	require.NoError(t, err)
	for i := int64(1); i < out.Len(); i++ {
		require.LessOrEqual(t, keys.Compare(i-1, i), 0, "hits %d and %d out of order", i-1, i)
	}
}

func TestSortStrategiesAgree(t *testing.T) {
	byStart := property.Multiple{property.Start, property.Length}
	for _, threshold := range []int64{100, 1_000_000} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			segs := segments(120, 0, 75, 33)
			out, err := newSorter(threshold).Sort(context.Background(), segs, nil, byStart)
			require.NoError(t, err)
			require.Equal(t, int64(228), out.Len())
			assertSortedBy(t, out, byStart)

			want := globalHits(segs)
			got := hitStrings(out)
			sort.Strings(want)
			sort.Strings(got)
			assert.Equal(t, want, got, "sorting is a permutation")
		})
	}
}

func TestMergeByGlobalDoc(t *testing.T) {
	segs := segments(60, 60)
	out, err := newSorter(10).Sort(context.Background(), segs, nil, property.DocID)
	require.NoError(t, err)
	assertSortedBy(t, out, property.DocID)
	assert.Equal(t, int32(0), out.Doc(0))
	assert.Equal(t, int32(1019), out.Doc(out.Len()-1))
}

func TestMergeReverse(t *testing.T) {
	segs := segments(50, 50, 50)
	p := property.Reverse{Property: property.DocID}
	out, err := newSorter(10).Sort(context.Background(), segs, nil, p)
	require.NoError(t, err)
	require.Equal(t, int64(150), out.Len())
	assert.Equal(t, int32(2016), out.Doc(0))
	assert.Equal(t, int32(0), out.Doc(out.Len()-1))
}

func TestSortEqualKeysAreStable(t *testing.T) {
	segs := segments(40, 40)
	for _, threshold := range []int64{10, 1000} {
		out, err := newSorter(threshold).Sort(context.Background(), segs, nil, property.Multiple{})
		require.NoError(t, err)
		assert.Equal(t, globalHits(segs), hitStrings(out), "threshold %d", threshold)
	}
}

func TestSortCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSorter(10).Sort(ctx, segments(200, 200, 200), nil, property.Start)
	assert.ErrorIs(t, err, apperrors.ErrCancelled)
}

func TestSortNoHits(t *testing.T) {
	out, err := newSorter(10).Sort(context.Background(), segments(0, 0), nil, property.Start)
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}

func TestCursorHeapSinksExhausted(t *testing.T) {
	buf := hits.FromHits(nil, hits.Hit{Doc: 0, Start: 0, End: 1})
	keys, err := property.ComputeKeys(context.Background(), property.Context{}, buf, property.DocID, nil)
	require.NoError(t, err)
	done := &cursor{keys: keys, perm: []int64{0}, pos: 1}
	live := &cursor{keys: keys, perm: []int64{0}}
	h := cursorHeap{done, live}
	assert.True(t, h.Less(1, 0))
	assert.False(t, h.Less(0, 1))
}

func BenchmarkSort(b *testing.B) {
	byStart := property.Multiple{property.Start, property.Length}
	for _, strategy := range []struct {
		name      string
		threshold int64
	}{{"single", 1 << 40}, {"merge", 100}} {
		b.Run(strategy.name, func(b *testing.B) {
			segs := segments(20000, 15000, 30000, 5000)
			s := newSorter(strategy.threshold)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Sort(context.Background(), segs, nil, byStart); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
