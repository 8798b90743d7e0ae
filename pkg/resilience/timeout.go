package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// CallWithTimeout runs fn under a deadline and returns its value. fn keeps
// running in the background after a timeout, so it must honour ctx. A
// non-positive timeout calls fn directly.
//
// An overrun matches both apperrors.ErrTimeout and context.DeadlineExceeded;
// a cancelled parent is reported as the parent's error.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err == nil || timeoutCtx.Err() == nil {
			return r.v, r.err
		}
	case <-timeoutCtx.Done():
	}
	var zero T
	if ctx.Err() != nil {
		return zero, fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	}
	return zero, fmt.Errorf("%s: %w: %w (limit: %v)", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
}

// WithTimeout is CallWithTimeout for functions without a result.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := CallWithTimeout(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
