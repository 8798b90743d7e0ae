package fetch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// Strategy receives the hits a Worker collected for one document at a time.
type Strategy interface {
	// Start is called at the beginning of every run and returns the phase
	// the worker should resume in.
	Start() Phase
	// OnDocumentBoundary hands over the hits stored since the previous
	// boundary and the number counted in the same interval. The strategy
	// owns batch until it returns and must leave it empty.
	OnDocumentBoundary(batch *hits.Buffer, counted int64) (Phase, error)
	// OnFinished is called exactly once, when the source is exhausted.
	OnFinished(batch *hits.Buffer, counted int64) error
}

// Worker drives the match source of one segment. A worker only ever pauses
// at a document boundary, so the hits of a document are never split between
// two runs or two phases.
type Worker struct {
	seg      Segment
	src      MatchSource
	strategy Strategy
	stats    *Stats
	logger   *slog.Logger

	batch   *hits.Buffer
	counted int64
	phase   Phase

	cur     hits.EphemeralHit
	prev    hits.EphemeralHit
	hasPrev bool
	// pending is set when cur was read but not yet processed, either because
	// the worker paused at the boundary it opened or a run was cancelled.
	pending bool
	scratch []hits.MatchInfo

	inDoc bool
	doc   int32

	exhausted bool
}

// NewWorker creates a worker for one segment. stats may be nil.
func NewWorker(seg Segment, src MatchSource, strategy Strategy, stats *Stats, defs *hits.MatchInfoDefs) *Worker {
	return &Worker{
		seg:      seg,
		src:      src,
		strategy: strategy,
		stats:    stats,
		logger:   slog.Default().With("component", "segment-fetcher", "segment", seg.Ord),
		batch:    hits.New(hits.Options{Defs: defs}),
	}
}

func (w *Worker) Segment() Segment { return w.seg }

// Exhausted reports whether the source has been fully read (or failed) and
// released.
func (w *Worker) Exhausted() bool { return w.exhausted }

// Run reads hits until the strategy reports Done, the source is exhausted or
// ctx is cancelled. Calling Run on an exhausted worker is a no-op. A failing
// source terminates the worker and is reported as an index access error.
func (w *Worker) Run(ctx context.Context) error {
	if w.exhausted {
		return nil
	}
	w.phase = w.strategy.Start()
	if w.phase == Done {
		return nil
	}
	for {
		if !w.pending {
			ok, err := w.next()
			if err != nil {
				return w.fail(err)
			}
			if !ok {
				return w.finish()
			}
			w.pending = true
		}
		if err := ctx.Err(); err != nil {
			return apperrors.Cancelled(err)
		}

		if w.hasPrev && w.cur.Doc != w.prev.Doc {
			if w.stats != nil {
				w.stats.docSeen(w.phase)
			}
			phase, err := w.strategy.OnDocumentBoundary(w.batch, w.counted)
			w.counted = 0
			if err != nil {
				return w.fail(err)
			}
			w.phase = phase
			if phase == Done {
				// cur opens the next document; it is processed on resume
				// without another boundary.
				w.hasPrev = false
				return nil
			}
		}
		w.pending = false

		if w.hasPrev && w.cur.SamePosition(&w.prev) {
			continue
		}
		w.counted++
		if w.phase == StoringAndCounting {
			if err := w.batch.Add(w.cur.Doc, w.cur.Start, w.cur.End, cloneInfos(w.cur.MatchInfo)); err != nil {
				return w.fail(err)
			}
		}
		w.prev.CopyFrom(&w.cur)
		w.hasPrev = true
	}
}

// next positions cur on the following match, confirming candidate documents
// as needed. It returns false once the source has no more documents.
func (w *Worker) next() (bool, error) {
	for {
		if w.inDoc {
			start, end, err := w.src.NextMatchPosition()
			if err != nil {
				return false, err
			}
			if start != NoMorePositions {
				w.scratch = w.src.PopulateMatchInfo(w.scratch[:0])
				mi := w.scratch
				if len(mi) == 0 {
					mi = nil
				}
				w.cur.Set(w.doc, start, end, mi)
				return true, nil
			}
			w.inDoc = false
		}
		doc, err := w.src.AdvanceApproximate()
		if err != nil {
			return false, err
		}
		if doc == NoMoreDocs {
			return false, nil
		}
		ok, err := w.src.ConfirmMatch()
		if err != nil {
			return false, err
		}
		if ok {
			w.inDoc = true
			w.doc = doc
		}
	}
}

func (w *Worker) finish() error {
	if w.hasPrev && w.stats != nil {
		w.stats.docSeen(w.phase)
	}
	err := w.strategy.OnFinished(w.batch, w.counted)
	w.counted = 0
	w.release()
	if err != nil {
		return w.wrap(err)
	}
	return nil
}

// fail terminates the worker. Documents completed before the failure stay
// available; the partial document is dropped.
func (w *Worker) fail(err error) error {
	w.batch.Clear()
	if ferr := w.strategy.OnFinished(w.batch, 0); ferr != nil {
		w.logger.Warn("finishing failed segment", "error", ferr)
	}
	w.release()
	w.logger.Error("segment fetch failed", "error", err)
	return w.wrap(err)
}

// wrap reports source failures as index access errors. Resource exhaustion
// keeps its own kind.
func (w *Worker) wrap(err error) error {
	if errors.Is(err, apperrors.ErrIndexTooLarge) {
		return err
	}
	return apperrors.IndexAccess(w.seg.Ord, err)
}

func (w *Worker) release() {
	w.exhausted = true
	w.pending = false
	if err := w.src.Close(); err != nil {
		w.logger.Warn("closing match source", "error", err)
	}
}

// Close releases the source of a worker that will not be run again.
func (w *Worker) Close() {
	if !w.exhausted {
		w.release()
	}
}

func cloneInfos(mi []hits.MatchInfo) []hits.MatchInfo {
	if mi == nil {
		return nil
	}
	out := make([]hits.MatchInfo, len(mi))
	copy(out, mi)
	return out
}
