// Package parallel distributes work items over a bounded number of
// goroutines. Items are balanced by an estimated size so that buckets of
// highly variable segments end up with similar total work.
package parallel

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// Pool bounds the number of bucket tasks running at once across every
// operation that shares it (fetch, sort, group).
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool allowing size concurrent tasks. A size below 1 is
// treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

func (p *Pool) acquire(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.sem.Acquire(ctx, 1)
}

func (p *Pool) release() {
	if p != nil {
		p.sem.Release(1)
	}
}

// Distribute sorts items by descending estimated size and assigns each one
// to the currently least-loaded of n buckets. Empty buckets are dropped.
func Distribute[T any](items []T, size func(T) int64, n int) [][]T {
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}
	if n == 0 {
		return nil
	}
	type sized struct {
		item T
		size int64
	}
	ordered := make([]sized, len(items))
	for i, it := range items {
		ordered[i] = sized{item: it, size: size(it)}
	}
	slices.SortStableFunc(ordered, func(a, b sized) int {
		switch {
		case a.size > b.size:
			return -1
		case a.size < b.size:
			return 1
		}
		return 0
	})
	buckets := make([][]T, n)
	loads := make([]int64, n)
	for _, it := range ordered {
		least := 0
		for b := 1; b < n; b++ {
			if loads[b] < loads[least] {
				least = b
			}
		}
		buckets[least] = append(buckets[least], it.item)
		loads[least] += it.size
	}
	out := buckets[:0]
	for _, b := range buckets {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}

// Runner runs bucket tasks over items of type T producing results of type R.
type Runner[T, R any] struct {
	pool    *Pool
	threads int
	size    func(T) int64
}

// New creates a Runner using at most threads buckets. size estimates the
// work per item; nil treats every item as size 1.
func New[T, R any](pool *Pool, threads int, size func(T) int64) *Runner[T, R] {
	if threads < 1 {
		threads = 1
	}
	if size == nil {
		size = func(T) int64 { return 1 }
	}
	return &Runner[T, R]{pool: pool, threads: threads, size: size}
}

// ForEach runs fn once per bucket and waits for all of them. The first error
// cancels the context passed to the other buckets.
func (r *Runner[T, R]) ForEach(ctx context.Context, items []T, fn func(ctx context.Context, bucket []T) error) error {
	_, err := r.Map(ctx, items, func(ctx context.Context, bucket []T) (R, error) {
		var zero R
		return zero, fn(ctx, bucket)
	})
	return err
}

// Map runs fn once per bucket and returns the per-bucket results in bucket
// order.
func (r *Runner[T, R]) Map(ctx context.Context, items []T, fn func(ctx context.Context, bucket []T) (R, error)) ([]R, error) {
	buckets := Distribute(items, r.size, r.threads)
	results := make([]R, len(buckets))
	if len(buckets) == 0 {
		return results, nil
	}
	if len(buckets) == 1 {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Cancelled(err)
		}
		res, err := fn(ctx, buckets[0])
		if err != nil {
			return nil, classify(ctx, err)
		}
		results[0] = res
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, bucket := range buckets {
		g.Go(func() error {
			if err := r.pool.acquire(gctx); err != nil {
				return apperrors.Cancelled(err)
			}
			defer r.pool.release()
			if err := gctx.Err(); err != nil {
				return apperrors.Cancelled(err)
			}
			res, err := fn(gctx, bucket)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classify(ctx, err)
	}
	return results, nil
}

// MapReduce maps every bucket with fn and folds the partial results with the
// associative reduce function.
func (r *Runner[T, R]) MapReduce(ctx context.Context, items []T, fn func(ctx context.Context, bucket []T) (R, error), reduce func(acc, part R) (R, error)) (R, error) {
	var acc R
	parts, err := r.Map(ctx, items, fn)
	if err != nil {
		return acc, err
	}
	for i, part := range parts {
		if i == 0 {
			acc = part
			continue
		}
		if acc, err = reduce(acc, part); err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// classify reports a cancellation of the caller's context as ErrCancelled
// even when a bucket surfaced a different error while being torn down.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, apperrors.ErrCancelled) {
		return apperrors.Cancelled(ctxErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Cancelled(err)
	}
	return err
}
