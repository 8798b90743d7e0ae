package hits

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

func variants() map[string]Options {
	return map[string]Options{
		"nolock32":  {},
		"lock32":    {Locking: true},
		"nolockBig": {Big: true},
		"lockBig":   {Locking: true, Big: true},
	}
}

func TestBufferAddGet(t *testing.T) {
	for name, opts := range variants() {
		t.Run(name, func(t *testing.T) {
			b := New(opts)
			require.NoError(t, b.Add(0, 1, 2, nil))
			require.NoError(t, b.Add(3, 4, 6, nil))

			assert.Equal(t, int64(2), b.Len())
			assert.Equal(t, opts.Locking, b.Locking())
			assert.Equal(t, opts.Big, b.Big())

			var e EphemeralHit
			b.Get(1, &e)
			assert.Equal(t, int32(3), e.Doc)
			assert.Equal(t, int32(4), e.Start)
			assert.Equal(t, int32(6), e.End)
			assert.Nil(t, e.MatchInfo)
			assert.False(t, b.HasMatchInfo())
		})
	}
}

func TestBufferMatchInfoColumnBackfilled(t *testing.T) {
	for name, opts := range variants() {
		t.Run(name, func(t *testing.T) {
			b := New(opts)
			require.NoError(t, b.Add(0, 0, 1, nil))
			require.NoError(t, b.Add(0, 1, 2, nil))
			require.NoError(t, b.Add(1, 0, 1, []MatchInfo{Span{Start: 0, End: 1}}))
			require.NoError(t, b.Add(1, 2, 3, nil))

			require.True(t, b.HasMatchInfo())
			assert.Nil(t, b.MatchInfo(0))
			assert.Nil(t, b.MatchInfo(1))
			assert.Equal(t, []MatchInfo{Span{Start: 0, End: 1}}, b.MatchInfo(2))
			assert.Nil(t, b.MatchInfo(3))
		})
	}
}

func TestSmallStoreRejectsOverflow(t *testing.T) {
	b := New(Options{})
	b.store.(*smallStore).limit = 2
	require.NoError(t, b.Add(0, 0, 1, nil))
	require.NoError(t, b.Add(0, 1, 2, nil))

	err := b.Add(0, 2, 3, nil)
	require.ErrorIs(t, err, apperrors.ErrIndexTooLarge)
	assert.Equal(t, int64(2), b.Len())
}

func TestBigStoreCrossesChunks(t *testing.T) {
	b := New(Options{Big: true})
	n := int64(chunkSize*2 + 17)
	for i := int64(0); i < n; i++ {
		var mi []MatchInfo
		if i == chunkSize+3 {
			mi = []MatchInfo{Span{Start: 1, End: 2}}
		}
		require.NoError(t, b.Add(int32(i/10), int32(i%10), int32(i%10)+1, mi))
	}
	require.Equal(t, n, b.Len())
	for _, i := range []int64{0, chunkSize - 1, chunkSize, chunkSize + 3, n - 1} {
		assert.Equal(t, int32(i/10), b.Doc(i), "doc at %d", i)
		assert.Equal(t, int32(i%10), b.Start(i), "start at %d", i)
	}
	assert.Nil(t, b.MatchInfo(5))
	assert.Equal(t, []MatchInfo{Span{Start: 1, End: 2}}, b.MatchInfo(chunkSize+3))
}

func TestAddAllWithDocOffset(t *testing.T) {
	src := FromHits(nil,
		Hit{Doc: 0, Start: 1, End: 2},
		Hit{Doc: 2, Start: 3, End: 4},
	)
	dst := New(Options{Locking: true})
	require.NoError(t, dst.Add(0, 0, 1, nil))
	require.NoError(t, dst.AddAllWithDocOffset(src, 100))

	require.Equal(t, int64(3), dst.Len())
	assert.Equal(t, int32(100), dst.Doc(1))
	assert.Equal(t, int32(102), dst.Doc(2))
	assert.Equal(t, int32(3), dst.Start(2))
}

func TestAddRangePartial(t *testing.T) {
	src := FromHits(nil,
		Hit{Doc: 0, Start: 0, End: 1},
		Hit{Doc: 0, Start: 1, End: 2},
		Hit{Doc: 1, Start: 0, End: 1},
	)
	dst := New(Options{})
	require.NoError(t, dst.AddRange(src, 1, 5, 0))
	require.Equal(t, int64(2), dst.Len())
	assert.Equal(t, Hit{Doc: 0, Start: 1, End: 2}, dst.Hit(0))
}

func TestInvalidHitPanics(t *testing.T) {
	b := New(Options{})
	assert.Panics(t, func() { _ = b.Add(0, -1, 2, nil) })
	assert.Panics(t, func() { _ = b.Add(0, 3, 2, nil) })
	assert.Panics(t, func() { b.Doc(0) })
}

func TestLockingBufferConcurrentReadWrite(t *testing.T) {
	b := New(Options{Locking: true})
	const n = 5000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			_ = b.Add(int32(i), 0, 1, nil)
		}
	}()
	go func() {
		defer wg.Done()
		var e EphemeralHit
		for b.Len() < n {
			if l := b.Len(); l > 0 {
				b.Get(l-1, &e)
				assert.Equal(t, int32(l-1), e.Doc)
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, int64(n), b.Len())
}

func TestToNonLockingSharesColumns(t *testing.T) {
	b := New(Options{Locking: true})
	require.NoError(t, b.Add(1, 2, 3, nil))
	v := b.ToNonLocking()
	assert.False(t, v.Locking())
	assert.Equal(t, b.Len(), v.Len())
	assert.Equal(t, b.Hit(0), v.Hit(0))
	assert.Same(t, v, v.ToNonLocking())
}

func TestSublist(t *testing.T) {
	b := FromHits(nil,
		Hit{Doc: 0, Start: 0, End: 1},
		Hit{Doc: 1, Start: 0, End: 1},
		Hit{Doc: 2, Start: 0, End: 1},
	)
	s := b.Sublist(1, 10)
	require.Equal(t, int64(2), s.Len())
	assert.Equal(t, int32(1), s.Doc(0))
	assert.Equal(t, int64(0), b.Sublist(5, 2).Len())
}

func TestSortSmallAndParallel(t *testing.T) {
	for _, n := range []int{10, 3*minParallelSortRun + 7} {
		rng := rand.New(rand.NewSource(int64(n)))
		b := New(Options{})
		for i := 0; i < n; i++ {
			require.NoError(t, b.Add(int32(rng.Intn(500)), int32(i), int32(i)+1, nil))
		}
		byDoc := func(x, y int64) int { return int(b.Doc(x)) - int(b.Doc(y)) }

		sorted, err := b.Sort(context.Background(), byDoc, 4)
		require.NoError(t, err)
		require.Equal(t, b.Len(), sorted.Len())
		assert.False(t, sorted.Locking())

		seen := make(map[int32]bool, n)
		for i := int64(0); i < sorted.Len(); i++ {
			if i > 0 {
				prevDoc, doc := sorted.Doc(i-1), sorted.Doc(i)
				require.LessOrEqual(t, prevDoc, doc)
				if prevDoc == doc {
					require.Less(t, sorted.Start(i-1), sorted.Start(i), "stable order")
				}
			}
			seen[sorted.Start(i)] = true
		}
		assert.Len(t, seen, n)
	}
}

func TestSortCancelled(t *testing.T) {
	b := New(Options{})
	for i := 0; i < 4*minParallelSortRun; i++ {
		require.NoError(t, b.Add(int32(i%7), 0, 1, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Sort(ctx, func(x, y int64) int { return int(b.Doc(x)) - int(b.Doc(y)) }, 4)
	require.ErrorIs(t, err, apperrors.ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func BenchmarkBufferAdd(b *testing.B) {
	for name, opts := range variants() {
		b.Run(name, func(b *testing.B) {
			buf := New(opts)
			for i := 0; i < b.N; i++ {
				_ = buf.Add(int32(i>>4), int32(i&15), int32(i&15)+1, nil)
			}
		})
	}
}
