package fetch

import "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"

const (
	minStretch = 10
	maxStretch = 10000
)

// viewStrategy moves completed document batches into the segment's buffer
// and publishes them to the view as stretches.
type viewStrategy struct {
	seg        Segment
	buf        *hits.Buffer
	view       *View
	stats      *Stats
	thresholds *Thresholds
	published  int64
}

func (s *viewStrategy) Start() Phase {
	return s.stats.nextPhase(s.thresholds)
}

func (s *viewStrategy) OnDocumentBoundary(batch *hits.Buffer, counted int64) (Phase, error) {
	if err := s.absorb(batch, counted); err != nil {
		return Done, err
	}
	phase := s.stats.nextPhase(s.thresholds)
	if phase == StoringAndCounting {
		s.publish(stretchThreshold(s.view.Len()))
	} else {
		s.publish(0)
	}
	return phase, nil
}

func (s *viewStrategy) OnFinished(batch *hits.Buffer, counted int64) error {
	err := s.absorb(batch, counted)
	s.publish(0)
	return err
}

// absorb stores as much of batch as the process limit allows and counts
// every hit.
func (s *viewStrategy) absorb(batch *hits.Buffer, counted int64) error {
	defer batch.Clear()
	s.stats.addCounted(counted)
	if n := s.stats.reserve(batch.Len()); n > 0 {
		return s.buf.AddRange(batch, 0, n, 0)
	}
	return nil
}

func (s *viewStrategy) publish(atLeast int64) {
	unpublished := s.buf.Len() - s.published
	if unpublished <= 0 || unpublished < atLeast {
		return
	}
	s.view.addStretch(s.seg, s.buf, s.published, unpublished)
	s.published += unpublished
}

// stretchThreshold grows with the view so a large result is not split into
// very many small stretches.
func stretchThreshold(viewLen int64) int64 {
	return max(minStretch, min(maxStretch, viewLen/10))
}
