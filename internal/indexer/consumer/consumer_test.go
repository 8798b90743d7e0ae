package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
)

type recordingIndex struct {
	indexed []string
	deleted []string
}

func (r *recordingIndex) IndexDocument(docID, _, _ string) error {
	r.indexed = append(r.indexed, docID)
	return nil
}

func (r *recordingIndex) DeleteDocument(docID string) (bool, error) {
	r.deleted = append(r.deleted, docID)
	return true, nil
}

func encode(t *testing.T, ev IngestEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessageOps(t *testing.T) {
	idx := &recordingIndex{}
	h := HandleMessage(idx, nil)
	ctx := context.Background()

	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", Body: "x"})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "b", Op: OpIndex})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", Op: OpDelete})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "c", Op: "merge"})))
	require.NoError(t, h(ctx, nil, []byte("not json")), "undecodable events are skipped")

	assert.Equal(t, []string{"a", "b"}, idx.indexed)
	assert.Equal(t, []string{"a"}, idx.deleted)
}

type trackedEvents []analytics.IndexEvent

func (t *trackedEvents) TrackIndex(e analytics.IndexEvent) { *t = append(*t, e) }

func TestHandleMessageTracksAppliedEvents(t *testing.T) {
	var tracked trackedEvents
	h := HandleMessage(&recordingIndex{}, nil, WithTracker(&tracked))
	ctx := context.Background()

	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", ShardID: 3})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", Op: OpDelete})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "c", Op: "merge"})))

	require.Len(t, tracked, 2)
	assert.Equal(t, analytics.EventIndexDoc, tracked[0].Type)
	assert.Equal(t, 3, tracked[0].ShardID)
	assert.Equal(t, analytics.EventDeleteDoc, tracked[1].Type)
}

func TestHandleMessageSharded(t *testing.T) {
	router, err := shard.NewRouter(config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	}, 2)
	require.NoError(t, err)
	defer router.Close()

	h := HandleMessageSharded(router, nil)
	ctx := context.Background()
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", Body: "hello world", ShardID: 1})))
	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "b", Body: "hello again", ShardID: -1})))
	assert.Error(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "c", ShardID: 7})))

	require.NoError(t, router.FlushAll())
	assert.Equal(t, int64(2), router.DocCount())

	require.NoError(t, h(ctx, nil, encode(t, IngestEvent{DocumentID: "a", ShardID: 1, Op: OpDelete})))
	assert.Equal(t, int64(1), router.DocCount())
}
