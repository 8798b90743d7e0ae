package fetch

import "sync/atomic"

// Phase controls what a worker does with the hits it reads.
type Phase int

const (
	StoringAndCounting Phase = iota
	CountingOnly
	Done
)

func (p Phase) String() string {
	switch p {
	case StoringAndCounting:
		return "storing_and_counting"
	case CountingOnly:
		return "counting_only"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Thresholds are the shared "requested to process" and "requested to count"
// targets of one query. They only ever grow.
//
// Ordering precondition: writers raise process before count and readers load
// process before count. A reader can then never pair a stale process target
// with an already raised count target, which would make a worker count hits
// it should have stored.
type Thresholds struct {
	process atomic.Int64
	count   atomic.Int64
}

// Raise lifts both targets to at least the given values, process first.
func (t *Thresholds) Raise(process, count int64) {
	raiseTo(&t.process, process)
	raiseTo(&t.count, count)
}

// Load returns the current targets, reading process before count.
func (t *Thresholds) Load() (process, count int64) {
	process = t.process.Load()
	count = t.count.Load()
	return process, count
}

func raiseTo(v *atomic.Int64, target int64) {
	for {
		cur := v.Load()
		if cur >= target || v.CompareAndSwap(cur, target) {
			return
		}
	}
}

// Stats accumulates the hit and document totals of one query across all of
// its segments.
type Stats struct {
	maxProcess int64
	maxCount   int64

	processed     atomic.Int64
	counted       atomic.Int64
	docsProcessed atomic.Int64
	docsCounted   atomic.Int64

	processLimitReached atomic.Bool
	countLimitReached   atomic.Bool
}

func NewStats(maxProcess, maxCount int64) *Stats {
	return &Stats{maxProcess: maxProcess, maxCount: maxCount}
}

// reserve claims storage for up to n hits under the hard process limit and
// returns how many may actually be stored.
func (s *Stats) reserve(n int64) int64 {
	for {
		cur := s.processed.Load()
		take := n
		if room := s.maxProcess - cur; take > room {
			take = room
		}
		if take <= 0 {
			if n > 0 {
				s.processLimitReached.Store(true)
			}
			return 0
		}
		if s.processed.CompareAndSwap(cur, cur+take) {
			if take < n {
				s.processLimitReached.Store(true)
			}
			return take
		}
	}
}

func (s *Stats) addCounted(n int64) {
	if n > 0 {
		s.counted.Add(n)
	}
}

func (s *Stats) docSeen(phase Phase) {
	switch phase {
	case StoringAndCounting:
		s.docsProcessed.Add(1)
		s.docsCounted.Add(1)
	case CountingOnly:
		s.docsCounted.Add(1)
	}
}

// nextPhase decides what a worker does with the next document.
func (s *Stats) nextPhase(t *Thresholds) Phase {
	process, count := t.Load()
	processed := s.processed.Load()
	counted := s.counted.Load()
	if processed < process && processed < s.maxProcess {
		return StoringAndCounting
	}
	if counted < count && counted < s.maxCount {
		return CountingOnly
	}
	if counted >= s.maxCount {
		s.countLimitReached.Store(true)
	}
	return Done
}

func (s *Stats) countExhausted() bool {
	return s.counted.Load() >= s.maxCount
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Processed           int64 `json:"processed"`
	Counted             int64 `json:"counted"`
	DocsProcessed       int64 `json:"docs_processed"`
	DocsCounted         int64 `json:"docs_counted"`
	ProcessLimitReached bool  `json:"process_limit_reached"`
	CountLimitReached   bool  `json:"count_limit_reached"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Processed:           s.processed.Load(),
		Counted:             s.counted.Load(),
		DocsProcessed:       s.docsProcessed.Load(),
		DocsCounted:         s.docsCounted.Load(),
		ProcessLimitReached: s.processLimitReached.Load(),
		CountLimitReached:   s.countLimitReached.Load(),
	}
}
