package group

import (
	"context"
	"fmt"
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

// segment builds a segment whose hits are spread over docs documents.
func segment(ord int, n, docs int) fetch.SegmentHits {
	buf := hits.New(hits.Options{})
	for j := 0; j < n; j++ {
		if err := buf.Add(int32(j%docs), int32(j), int32(j+1+j%3), nil); err != nil {
			panic(err)
		}
	}
	return fetch.SegmentHits{
		Segment: fetch.Segment{Ord: ord, DocBase: int32(ord * 100), MaxDoc: 100},
		Hits:    buf,
	}
}

func newGrouper(threshold int64, maxGroups int) *Grouper {
	cfg := config.Default().Hits
	cfg.SingleThreadThreshold = threshold
	cfg.MaxGroups = maxGroups
	return New(cfg, parallel.NewPool(4), nil)
}

func totals(g *Groups) map[string]int64 {
	out := make(map[string]int64, g.Len())
	for _, grp := range g.All() {
		out[grp.Value.String()] = grp.Total
	}
	return out
}

func TestGroupByDocSumsToTotal(t *testing.T) {
	segs := []fetch.SegmentHits{segment(0, 5, 2), segment(1, 0, 1), segment(2, 3, 1)}
	for _, threshold := range []int64{1, 100} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			g, err := newGrouper(threshold, 0).GroupBy(context.Background(), segs, nil, property.DocID, 10)
			require.NoError(t, err)
			assert.Equal(t, 3, g.Len())
			assert.Equal(t, int64(8), g.TotalHits())
			assert.Equal(t, map[string]int64{"0": 3, "1": 2, "200": 3}, totals(g))

			var sum int64
			for _, grp := range g.All() {
				sum += grp.Total
				assert.Equal(t, grp.Total, grp.Hits.Len())
				for i := int64(0); i < grp.Hits.Len(); i++ {
					assert.Equal(t, int32(grp.Value.Int), grp.Hits.Doc(i), "stored hits carry global docs")
				}
			}
			assert.Equal(t, int64(8), sum)
		})
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	segs := []fetch.SegmentHits{segment(0, 400, 7), segment(1, 250, 5), segment(2, 90, 9), segment(3, 10, 2)}
	p := property.Length
	single, err := newGrouper(1_000_000, 0).GroupBy(context.Background(), segs, nil, p, 5)
	require.NoError(t, err)
	par, err := newGrouper(10, 0).GroupBy(context.Background(), segs, nil, p, 5)
	require.NoError(t, err)

	assert.Equal(t, totals(single), totals(par))
	assert.Equal(t, int64(750), par.TotalHits())
	for _, grp := range par.All() {
		assert.LessOrEqual(t, grp.Hits.Len(), int64(5))
		assert.Equal(t, grp.Hits.Len(), single.Lookup(grp.Value).Hits.Len())
	}
}

func TestStoredHitsCap(t *testing.T) {
	segs := []fetch.SegmentHits{segment(0, 30, 1), segment(1, 30, 1)}
	tests := []struct {
		maxStored int64
		want      int64
	}{
		{-1, 30},
		{0, 0},
		{4, 4},
	}
	for _, tt := range tests {
		g, err := newGrouper(10, 0).GroupBy(context.Background(), segs, nil, property.Length, tt.maxStored)
		require.NoError(t, err)
		assert.Equal(t, int64(60), g.TotalHits())
		for _, grp := range g.All() {
			assert.Equal(t, min(tt.want, grp.Total), grp.Hits.Len(), "maxStored %d value %s", tt.maxStored, grp.Value)
		}
	}
}

func TestTooManyGroups(t *testing.T) {
	segs := []fetch.SegmentHits{segment(0, 50, 10), segment(1, 50, 10)}
	for _, threshold := range []int64{1, 1000} {
		_, err := newGrouper(threshold, 5).GroupBy(context.Background(), segs, nil, property.DocID, 1)
		assert.ErrorIs(t, err, apperrors.ErrTooManyGroups, "threshold %d", threshold)
	}
}

func TestGroupOrderings(t *testing.T) {
	segs := []fetch.SegmentHits{segment(0, 6, 3), segment(1, 1, 1)}
	g, err := newGrouper(1000, 0).GroupBy(context.Background(), segs, nil, property.DocID, -1)
	require.NoError(t, err)

	bySize := g.BySize()
	require.Len(t, bySize, 4)
	assert.Equal(t, int64(2), bySize[0].Total)
	assert.Equal(t, int64(0), bySize[0].Value.Int, "ties broken by value")
	assert.Equal(t, int64(100), bySize[3].Value.Int)

	byValue := g.ByValue()
	assert.Equal(t, []int64{0, 1, 2, 100}, []int64{byValue[0].Value.Int, byValue[1].Value.Int, byValue[2].Value.Int, byValue[3].Value.Int})
}

func TestGroupByCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	segs := []fetch.SegmentHits{segment(0, 50, 10), segment(1, 50, 10)}
	for _, threshold := range []int64{1, 1000} {
		_, err := newGrouper(threshold, 0).GroupBy(ctx, segs, nil, property.DocID, 1)
		assert.ErrorIs(t, err, apperrors.ErrCancelled)
	}
}

func TestGroupByNoSegments(t *testing.T) {
	g, err := newGrouper(1, 0).GroupBy(context.Background(), nil, nil, property.DocID, 1)
	require.NoError(t, err)
	assert.Zero(t, g.Len())
}

func BenchmarkGroupBy(b *testing.B) {
	segs := []fetch.SegmentHits{segment(0, 20000, 100), segment(1, 20000, 100), segment(2, 20000, 100)}
	for _, strategy := range []struct {
		name      string
		threshold int64
	}{{"single", 1 << 40}, {"parallel", 100}} {
		b.Run(strategy.name, func(b *testing.B) {
			g := newGrouper(strategy.threshold, 0)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := g.GroupBy(context.Background(), segs, nil, property.DocID, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
