package shard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
)

func TestWatcherReloadsSegmentsFromAnotherWriter(t *testing.T) {
	cfg := config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	}
	writer, err := NewRouter(cfg, 2)
	require.NoError(t, err)
	defer writer.Close()
	reader, err := NewRouter(cfg, 2)
	require.NoError(t, err)
	defer reader.Close()

	var reloads atomic.Int64
	w, err := NewWatcher(reader, 10*time.Millisecond, func(changed int) { reloads.Add(int64(changed)) })
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	engine, err := writer.Route(1)
	require.NoError(t, err)
	require.NoError(t, engine.IndexDocument("a", "", "fresh words"))
	require.NoError(t, writer.FlushAll())

	assert.Eventually(t, func() bool { return reader.DocCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Positive(t, reloads.Load())
}

func TestDirsFollowShardOrder(t *testing.T) {
	r := newRouter(t, 3)
	dirs := r.Dirs()
	require.Len(t, dirs, 3)
	assert.Contains(t, dirs[2], "shard-2")
}
