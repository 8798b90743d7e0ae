package hits

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// Comparator orders two hits of one buffer by index. It is called from
// several goroutines at once and must not mutate shared state.
type Comparator func(a, b int64) int

// minParallelSortRun is the smallest run worth handing to its own goroutine.
const minParallelSortRun = 4096

// Sort returns a new non-locking buffer with the hits of b ordered by cmp.
// Equal hits keep their relative order.
func (b *Buffer) Sort(ctx context.Context, cmp Comparator, parallelism int) (*Buffer, error) {
	perm, err := b.SortedPermutation(ctx, cmp, parallelism)
	if err != nil {
		return nil, err
	}
	return b.Permute(perm)
}

// SortedPermutation returns the indexes [0, Len) ordered by cmp.
func (b *Buffer) SortedPermutation(ctx context.Context, cmp Comparator, parallelism int) ([]int64, error) {
	n := b.Len()
	perm := make([]int64, n)
	for i := range perm {
		perm[i] = int64(i)
	}
	if err := parallelSort(ctx, perm, cmp, parallelism); err != nil {
		return nil, err
	}
	return perm, nil
}

// Permute materialises the hits of b in the order given by perm.
func (b *Buffer) Permute(perm []int64) (*Buffer, error) {
	n := int64(len(perm))
	out := New(Options{Capacity: n, Big: b.Big() || n > MaxSmallLen, Defs: b.defs})
	b.rlock()
	defer b.runlock()
	for _, i := range perm {
		b.checkIndex(i)
		if err := out.store.add(b.store.doc(i), b.store.start(i), b.store.end(i), b.store.matchInfo(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// parallelSort stable-sorts runs of perm concurrently, then merges adjacent
// runs pairwise until one remains.
func parallelSort(ctx context.Context, perm []int64, cmp Comparator, parallelism int) error {
	less := func(x, y int64) int { return cmp(x, y) }
	n := len(perm)
	if parallelism <= 1 || n < 2*minParallelSortRun {
		slices.SortStableFunc(perm, less)
		return nil
	}
	runs := parallelism
	if limit := n / minParallelSortRun; runs > limit {
		runs = limit
	}
	bounds := make([]int, runs+1)
	for i := 0; i <= runs; i++ {
		bounds[i] = i * n / runs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for r := 0; r < runs; r++ {
		lo, hi := bounds[r], bounds[r+1]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return apperrors.Cancelled(err)
			}
			slices.SortStableFunc(perm[lo:hi], less)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	scratch := make([]int64, n)
	for len(bounds) > 2 {
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled(err)
		}
		next := make([]int, 0, len(bounds)/2+1)
		var g errgroup.Group
		g.SetLimit(parallelism)
		for i := 0; i+2 < len(bounds); i += 2 {
			lo, mid, hi := bounds[i], bounds[i+1], bounds[i+2]
			next = append(next, lo)
			g.Go(func() error {
				mergeRuns(perm[lo:mid], perm[mid:hi], scratch[lo:hi], cmp)
				copy(perm[lo:hi], scratch[lo:hi])
				return nil
			})
		}
		if (len(bounds)-1)%2 == 1 {
			next = append(next, bounds[len(bounds)-2])
		}
		next = append(next, n)
		if err := g.Wait(); err != nil {
			return err
		}
		bounds = next
	}
	return nil
}

func mergeRuns(a, b, out []int64, cmp Comparator) {
	i, j, k := 0, 0, 0
	for i < len(a) && j < len(b) {
		if cmp(b[j], a[i]) < 0 {
			out[k] = b[j]
			j++
		} else {
			out[k] = a[i]
			i++
		}
		k++
	}
	k += copy(out[k:], a[i:])
	copy(out[k:], b[j:])
}
