package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// RetryConfig controls backoff. Zero fields take the defaults of 3 attempts,
// 100ms initial delay doubling up to 10s, and 10% jitter. Retryable, when
// set, stops retrying as soon as it reports an error as permanent.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	Retryable      func(error) bool
}

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Retry returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2
	}
	if cfg.JitterFraction <= 0 || cfg.JitterFraction >= 1 {
		cfg.JitterFraction = 0.1
	}
	return cfg
}

func (cfg RetryConfig) permanent(err error) bool {
	if errors.Is(err, ErrPermanent) {
		return true
	}
	return cfg.Retryable != nil && !cfg.Retryable(err)
}

// backoff yields successive jittered delays capped at MaxDelay.
type backoff struct {
	base   float64
	cfg    RetryConfig
	random func() float64
}

func newBackoff(cfg RetryConfig) *backoff {
	return &backoff{base: float64(cfg.InitialDelay), cfg: cfg, random: rand.Float64}
}

func (b *backoff) next() time.Duration {
	d := b.base * (1 + b.cfg.JitterFraction*(2*b.random()-1))
	b.base = min(b.base*b.cfg.Multiplier, float64(b.cfg.MaxDelay))
	return min(time.Duration(d), b.cfg.MaxDelay)
}

// Retry runs fn up to MaxAttempts times with exponential backoff and jitter.
// It gives up early on permanent errors and when ctx is done.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	delays := newBackoff(cfg)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if cfg.permanent(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("all %d attempts failed for %s: %w", cfg.MaxAttempts, name, err)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", context.Cause(ctx))
		}

		wait := delays.next()
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", err,
			"next_delay", wait,
		)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted during backoff: %w", context.Cause(ctx))
		}
	}
}
