package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

// Coordinator owns the workers of one query and lets any number of callers
// ask for "at least N hits" while only one of them drives fetching.
type Coordinator struct {
	cfg     config.HitsConfig
	pool    *parallel.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger

	thresholds Thresholds
	stats      *Stats
	view       *View
	defs       *hits.MatchInfoDefs
	segments   []SegmentHits

	// lock admits the single caller allowed to run a fetch round.
	lock chan struct{}

	mu      sync.Mutex
	active  []*Worker
	lastErr error
}

// NewCoordinator creates a coordinator with one worker per source. defs is
// the match info registry shared by every source of the query.
func NewCoordinator(cfg config.HitsConfig, pool *parallel.Pool, sources []SegmentSource, defs *hits.MatchInfoDefs) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		pool:   pool,
		logger: slog.Default().With("component", "hit-fetcher"),
		stats:  NewStats(cfg.ProcessLimit(), cfg.CountLimit()),
		view:   newView(),
		defs:   defs,
		lock:   make(chan struct{}, 1),
	}
	c.view.ensure = c.EnsureAvailable
	big := cfg.ProcessLimit() > hits.MaxSmallLen
	for _, s := range sources {
		buf := hits.New(hits.Options{Locking: true, Big: big, Defs: defs})
		strategy := &viewStrategy{
			seg:        s.Segment,
			buf:        buf,
			view:       c.view,
			stats:      c.stats,
			thresholds: &c.thresholds,
		}
		c.segments = append(c.segments, SegmentHits{Segment: s.Segment, Hits: buf})
		c.active = append(c.active, NewWorker(s.Segment, s.Source, strategy, c.stats, defs))
	}
	if len(c.active) == 0 {
		c.view.markComplete()
	}
	return c
}

// WithMetrics records fetch rounds and hit totals in m.
func (c *Coordinator) WithMetrics(m *metrics.Metrics) *Coordinator {
	c.metrics = m
	return c
}

func (c *Coordinator) View() *View { return c.view }

func (c *Coordinator) Defs() *hits.MatchInfoDefs { return c.defs }

func (c *Coordinator) Stats() Snapshot { return c.stats.Snapshot() }

// Err returns the first segment error seen so far.
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// EnsureAvailable fetches until at least target hits are available or no
// more can be fetched, and reports whether target was reached. A negative
// target fetches everything up to the count limit.
func (c *Coordinator) EnsureAvailable(ctx context.Context, target int64) (bool, error) {
	reached := func() bool {
		if target < 0 {
			return c.view.Complete()
		}
		return c.view.Len() >= target
	}
	if reached() || c.view.Complete() {
		return reached(), c.Err()
	}

	count := c.clamp(target)
	process := min(count, c.stats.maxProcess)
	c.thresholds.Raise(process, count)

	if err := c.acquire(ctx, reached); err != nil {
		if errors.Is(err, errSatisfied) {
			return true, c.Err()
		}
		return false, err
	}
	defer c.release()

	if reached() || c.view.Complete() {
		return reached(), c.Err()
	}
	if err := c.round(ctx, target); err != nil {
		return false, err
	}
	return reached(), c.Err()
}

// clamp maps a target onto the count threshold: unlimited targets become the
// count limit and others are rounded up by a small batch so linear iteration
// does not coordinate once per hit.
func (c *Coordinator) clamp(target int64) int64 {
	limit := c.stats.maxCount
	if target < 0 {
		return limit
	}
	batch := c.cfg.FetchBatchMin
	if batch < 0 {
		batch = 0
	}
	if target > limit-batch || target > math.MaxInt64-batch {
		return limit
	}
	return target + batch
}

var errSatisfied = errors.New("satisfied while waiting")

// acquire takes the round lock, polling reached between attempts so a caller
// whose target another round already produced can return early.
func (c *Coordinator) acquire(ctx context.Context, reached func() bool) error {
	poll := c.cfg.PollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	timer := time.NewTimer(poll)
	defer timer.Stop()
	for {
		select {
		case c.lock <- struct{}{}:
			return nil
		case <-ctx.Done():
			return apperrors.Cancelled(ctx.Err())
		case <-timer.C:
			if reached() {
				return errSatisfied
			}
			timer.Reset(poll)
		}
	}
}

func (c *Coordinator) release() { <-c.lock }

// round runs every unfinished worker once. Workers stop by themselves once
// the thresholds are met. A failing segment does not stop its siblings; the
// first failure is kept and returned.
func (c *Coordinator) round(ctx context.Context, target int64) error {
	c.mu.Lock()
	workers := append([]*Worker(nil), c.active...)
	c.mu.Unlock()

	start := time.Now()
	before := c.stats.Snapshot()
	c.logger.Debug("fetch round", "segments", len(workers), "target", target, "available", c.view.Len())

	runner := parallel.New[*Worker, struct{}](c.pool, c.cfg.Threads(c.cfg.FetchThreads), func(w *Worker) int64 {
		return int64(w.seg.MaxDoc)
	})
	err := runner.ForEach(ctx, workers, func(ctx context.Context, bucket []*Worker) error {
		for _, w := range bucket {
			if err := w.Run(ctx); err != nil {
				if errors.Is(err, apperrors.ErrCancelled) {
					return err
				}
				c.recordErr(err)
			}
		}
		return nil
	})

	c.finishRound()
	c.observe(before, time.Since(start), err)
	if err != nil {
		return err
	}
	return c.Err()
}

func (c *Coordinator) recordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		c.lastErr = err
	}
}

// finishRound drops exhausted workers and completes the view once nothing is
// left to read or the count limit is reached.
func (c *Coordinator) finishRound() {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.active[:0]
	for _, w := range c.active {
		if !w.Exhausted() {
			remaining = append(remaining, w)
		}
	}
	c.active = remaining
	if len(c.active) > 0 && !c.stats.countExhausted() {
		return
	}
	for _, w := range c.active {
		w.Close()
	}
	c.active = nil
	c.view.markComplete()
	snap := c.stats.Snapshot()
	c.logger.Info("fetch complete",
		"stored", snap.Processed,
		"counted", snap.Counted,
		"process_limit_reached", snap.ProcessLimitReached,
		"count_limit_reached", snap.CountLimitReached,
	)
}

func (c *Coordinator) observe(before Snapshot, d time.Duration, err error) {
	if c.metrics == nil {
		return
	}
	status := "ok"
	if err != nil || c.Err() != nil {
		status = "error"
	}
	after := c.stats.Snapshot()
	c.metrics.FetchRoundsTotal.WithLabelValues(status).Inc()
	c.metrics.FetchRoundDuration.Observe(d.Seconds())
	c.metrics.HitsFetchedTotal.Add(float64(after.Processed - before.Processed))
	c.metrics.HitsCountedTotal.Add(float64(after.Counted - before.Counted))
}

// SegmentBuffers fetches everything and returns the finished per-segment
// buffers in segment order. Docs are segment-relative.
func (c *Coordinator) SegmentBuffers(ctx context.Context) ([]SegmentHits, error) {
	if _, err := c.EnsureAvailable(ctx, -1); err != nil {
		return nil, err
	}
	if !c.view.Complete() {
		return nil, fmt.Errorf("%w: fetch did not complete", apperrors.ErrInternal)
	}
	out := make([]SegmentHits, len(c.segments))
	for i, s := range c.segments {
		out[i] = SegmentHits{Segment: s.Segment, Hits: s.Hits.ToNonLocking()}
	}
	return out, nil
}

// Close waits for a running round and releases the sources of workers that
// have not finished. The view keeps the hits fetched so far.
func (c *Coordinator) Close() {
	c.lock <- struct{}{}
	defer c.release()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.active {
		w.Close()
	}
}
