package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/fetch"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/hits"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/parallel"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/property"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/results"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
)

// corpus flushes each batch of documents into its own segment.
func corpus(t *testing.T, batches ...[]string) (*indexer.Engine, *indexer.Snapshot) {
	t.Helper()
	e, err := indexer.NewEngine(config.IndexerConfig{
		DataDir:        t.TempDir(),
		SegmentMaxSize: 1 << 30,
		FlushInterval:  time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	n := 0
	for _, batch := range batches {
		for _, body := range batch {
			require.NoError(t, e.IndexDocument(docName(n), "", body))
			n++
		}
		require.NoError(t, e.Flush())
	}
	return e, e.Snapshot()
}

func docName(n int) string {
	return string(rune('a' + n))
}

func run(t *testing.T, snap *indexer.Snapshot, q string) ([]hits.Hit, *results.Hits) {
	t.Helper()
	query, err := Parse(q)
	require.NoError(t, err)
	cfg := config.Default().Hits
	cfg.PollInterval = 5 * time.Millisecond
	env := results.Env{Config: cfg, Pool: parallel.NewPool(4), Docs: snap}
	defs := hits.NewMatchInfoDefs()
	h := results.FromQuery(env, query.Sources(snap, defs), defs)
	t.Cleanup(h.Close)

	sorted, err := h.Sorted(context.Background(), property.Multiple{property.DocID, property.Start})
	require.NoError(t, err)
	var out []hits.Hit
	require.NoError(t, sorted.Iterate(context.Background(), func(_ int64, e *hits.EphemeralHit) bool {
		out = append(out, e.ToHit())
		return true
	}))
	return out, h
}

func spans(hs []hits.Hit) [][3]int32 {
	out := make([][3]int32, len(hs))
	for i, h := range hs {
		out[i] = [3]int32{h.Doc, h.Start, h.End}
	}
	return out
}

func TestTermAcrossSegments(t *testing.T) {
	_, snap := corpus(t,
		[]string{"cats and more cats", "no felines here"},
		[]string{"a cat sat"},
	)
	got, h := run(t, snap, "cats")
	assert.Equal(t, [][3]int32{{0, 0, 1}, {0, 3, 4}, {2, 1, 2}}, spans(got))
	assert.Equal(t, int64(3), h.Stats().Processed)
}

func TestPhraseConfirmsPositions(t *testing.T) {
	_, snap := corpus(t, []string{
		"the black cat and the white cat",
		"black dogs chase a cat",
		"cat black cat",
	})
	got, _ := run(t, snap, `"black cat"`)
	assert.Equal(t, [][3]int32{{0, 1, 3}, {2, 1, 3}}, spans(got))
}

func TestPhraseGapMatchesAnyWord(t *testing.T) {
	_, snap := corpus(t, []string{"cat in hat", "cat on hat", "cat hat", "hat cat"})
	got, _ := run(t, snap, `"cat in hat"`)
	assert.Equal(t, [][3]int32{{0, 0, 3}, {1, 0, 3}}, spans(got))
}

func TestAndRequiresEveryClause(t *testing.T) {
	_, snap := corpus(t,
		[]string{"dogs chase cats", "dogs sleep"},
		[]string{"cats sleep", "cats watch dogs"},
	)
	got, _ := run(t, snap, "dogs cats")
	assert.Equal(t, [][3]int32{{0, 0, 1}, {0, 2, 3}, {3, 0, 1}, {3, 2, 3}}, spans(got))
}

func TestOrMergesClauses(t *testing.T) {
	_, snap := corpus(t, []string{"dogs chase cats", "dogs sleep", "birds sing"})
	got, _ := run(t, snap, "dogs OR cats")
	assert.Equal(t, [][3]int32{{0, 0, 1}, {0, 2, 3}, {1, 0, 1}}, spans(got))
}

func TestExcludedTermsDropDocuments(t *testing.T) {
	_, snap := corpus(t, []string{"dogs chase cats", "dogs sleep", "dogs bark"})
	got, _ := run(t, snap, "dogs NOT cats")
	assert.Equal(t, [][3]int32{{1, 0, 1}, {2, 0, 1}}, spans(got))
}

func TestDeletedDocumentsAreSkipped(t *testing.T) {
	e, _ := corpus(t, []string{"cats one", "cats two", "cats three"})
	_, err := e.DeleteDocument("b")
	require.NoError(t, err)
	got, _ := run(t, e.Snapshot(), "cats")
	assert.Equal(t, [][3]int32{{0, 0, 1}, {2, 0, 1}}, spans(got))
}

func TestCapturesRegisterLazily(t *testing.T) {
	_, snap := corpus(t,
		[]string{"dogs bark"},
		[]string{"cats purr", "dogs and cats"},
	)
	query, err := Parse("who:dogs OR pet:cats")
	require.NoError(t, err)
	defs := hits.NewMatchInfoDefs()
	sources := query.Sources(snap, defs)
	require.Len(t, sources, 2)

	second := sources[1].Source
	doc, err := second.AdvanceApproximate()
	require.NoError(t, err)
	assert.Equal(t, int32(0), doc)
	ok, err := second.ConfirmMatch()
	require.NoError(t, err)
	require.True(t, ok)
	start, end, err := second.NextMatchPosition()
	require.NoError(t, err)
	assert.Equal(t, [2]int32{0, 1}, [2]int32{start, end})

	mi := second.PopulateMatchInfo(nil)
	assert.Equal(t, 0, defs.IndexOf("pet"), "first capture seen gets index 0")
	assert.Equal(t, -1, defs.IndexOf("who"))
	assert.Equal(t, []hits.MatchInfo{hits.Span{Start: 0, End: 1}}, mi)

	_, err = second.AdvanceApproximate()
	require.NoError(t, err)
	ok, err = second.ConfirmMatch()
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = second.NextMatchPosition()
	require.NoError(t, err)
	mi = second.PopulateMatchInfo(mi[:0])
	assert.Equal(t, 1, defs.IndexOf("who"))
	assert.Equal(t, []hits.MatchInfo{nil, hits.Span{Start: 0, End: 1}}, mi)

	doc, err = second.AdvanceApproximate()
	require.NoError(t, err)
	assert.Equal(t, fetch.NoMoreDocs, doc)
	require.NoError(t, second.Close())
}

func TestCaptureProperty(t *testing.T) {
	_, snap := corpus(t, []string{"the old dog", "a young dog"})
	query, err := Parse(`x:"young dog"`)
	require.NoError(t, err)
	cfg := config.Default().Hits
	env := results.Env{Config: cfg, Pool: parallel.NewPool(2), Docs: snap}
	defs := hits.NewMatchInfoDefs()
	h := results.FromQuery(env, query.Sources(snap, defs), defs)
	defer h.Close()

	groups, err := h.Grouped(context.Background(), property.Capture("x"), 1)
	require.NoError(t, err)
	require.Equal(t, 1, groups.Len())
	assert.Equal(t, "young dog", groups.Get(0).Value.Str)
}

type failingIndex struct{}

func (failingIndex) Search(string) (index.PostingList, error) {
	return nil, errors.New("disk on fire")
}

func (failingIndex) Document(int32) index.Document { return index.Document{} }

func TestPostingErrorsSurfaceFromAdvance(t *testing.T) {
	src := newSource(parser.Parse("cats"), failingIndex{}, nil, hits.NewMatchInfoDefs())
	_, err := src.AdvanceApproximate()
	assert.ErrorContains(t, err, "disk on fire")
}

func TestEmptyQueryIsInvalid(t *testing.T) {
	_, err := Parse("the of and")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestQueryString(t *testing.T) {
	q, err := Parse(`x:"black cats" OR dogs NOT mice`)
	require.NoError(t, err)
	assert.Equal(t, `x:"black cat" OR dog NOT mice`, q.String())
}
