package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
)

func TestChildSpansInheritTraceAndSumTimings(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "hits", "q-1")
	assert.Same(t, root, SpanFromContext(ctx))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, s := StartChildSpan(ctx, "fetch")
			time.Sleep(time.Millisecond)
			s.End()
		}()
	}
	wg.Wait()
	cctx, sort := StartChildSpan(ctx, "sort")
	assert.Equal(t, "q-1", sort.TraceID)
	assert.Same(t, sort, SpanFromContext(cctx))
	_, unfinished := StartChildSpan(ctx, "group")
	sort.End()

	timings := root.Timings()
	assert.Contains(t, timings, "fetch")
	assert.Contains(t, timings, "sort")
	assert.NotContains(t, timings, "group")
	assert.GreaterOrEqual(t, timings["fetch"], 4.0)
	unfinished.End()
}

func TestEndIsIdempotent(t *testing.T) {
	_, s := StartSpan(context.Background(), "hits", "q")
	s.End()
	d := s.Duration()
	time.Sleep(2 * time.Millisecond)
	s.End()
	assert.Equal(t, d, s.Duration())
}

func TestStartChildSpanWithoutParent(t *testing.T) {
	ctx, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
	assert.Same(t, s, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.False(t, NewSampler(config.TracingConfig{Enabled: false, SampleRate: 1}).Sample())
	assert.False(t, NewSampler(config.TracingConfig{Enabled: true, SampleRate: 0}).Sample())
	assert.True(t, NewSampler(config.TracingConfig{Enabled: true, SampleRate: 1}).Sample())
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, root := StartSpan(context.Background(), "hits", "q-9")
	root.SetAttr("query", `"cat"`)
	_, child := StartChildSpan(ctx, "count")
	child.End()
	root.End()
	root.Log(logger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=hits")
	assert.Contains(t, lines[0], "depth=0")
	assert.Contains(t, lines[1], "span=count")
	assert.Contains(t, lines[1], "trace_id=q-9")
}
