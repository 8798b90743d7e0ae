// Package tracing records per-query span trees. Spans ride on the context,
// children attach to the span in scope, and sampled roots are written to
// slog when they finish.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name    string
	TraceID string

	mu       sync.Mutex
	start    time.Time
	duration time.Duration
	ended    bool
	children []*Span
	attrs    map[string]any
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, start: time.Now(), attrs: make(map[string]any)}
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a span under the one in ctx. Stage workers run in
// parallel, so attaching is locked.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// End fixes the span's duration. Later calls are ignored.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.duration = time.Since(s.start)
		s.ended = true
	}
}

// Duration is zero until End.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Timings sums finished child durations by name, in milliseconds. A stage
// that ran more than once, such as a grouping retry, is added up.
func (s *Span) Timings() map[string]float64 {
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	out := make(map[string]float64, len(children))
	for _, c := range children {
		c.mu.Lock()
		d, ended := c.duration, c.ended
		c.mu.Unlock()
		if ended {
			out[c.Name] += float64(d.Microseconds()) / 1000
		}
	}
	return out
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Sampler picks which finished root spans get logged.
type Sampler struct {
	rate float64
}

func NewSampler(cfg config.TracingConfig) Sampler {
	if !cfg.Enabled {
		return Sampler{}
	}
	return Sampler{rate: cfg.SampleRate}
}

// Sample reports whether the next trace should be logged.
func (s Sampler) Sample() bool {
	switch {
	case s.rate <= 0:
		return false
	case s.rate >= 1:
		return true
	default:
		return rand.Float64() < s.rate
	}
}

// Log writes the span tree to logger, parents before children.
func (s *Span) Log(logger *slog.Logger) {
	s.log(logger, 0)
}

func (s *Span) log(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	logger.Info("span", attrs...)
	for _, child := range children {
		child.log(logger, depth+1)
	}
}
