// Package shard splits the corpus into a fixed number of shards. Each shard
// is an independent indexer.Engine with its own data directory; documents
// are placed by hashing their external id, and a corpus snapshot lists the
// shards in shard order.
package shard

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

// Router owns one engine per shard. The set of shards is fixed at
// construction, so lookups need no locking.
type Router struct {
	dataDir string
	engines []*indexer.Engine
	logger  *slog.Logger
}

// For maps an external document id onto one of numShards shards. Ingestion
// and the indexer must agree on it.
func For(docID string, numShards int) int {
	if numShards < 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(docID))
	return int(h.Sum32() % uint32(numShards))
}

func shardDir(base string, id int) string {
	return filepath.Join(base, fmt.Sprintf("shard-%d", id))
}

// NewRouter opens numShards engines under baseCfg.DataDir/shard-N.
func NewRouter(baseCfg config.IndexerConfig, numShards int) (*Router, error) {
	numShards = max(numShards, 1)
	r := &Router{
		dataDir: baseCfg.DataDir,
		engines: make([]*indexer.Engine, 0, numShards),
		logger:  slog.Default().With("component", "shard-router"),
	}
	for id := range numShards {
		cfg := baseCfg
		cfg.DataDir = shardDir(baseCfg.DataDir, id)
		engine, err := indexer.NewEngine(cfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("opening shard %d: %w", id, err)
		}
		r.engines = append(r.engines, engine)
		r.logger.Debug("shard opened", "shard_id", id, "data_dir", cfg.DataDir, "docs", engine.DocCount())
	}
	r.logger.Info("shard router ready", "num_shards", numShards, "docs", r.DocCount())
	return r, nil
}

func (r *Router) NumShards() int { return len(r.engines) }

// Route returns the engine of shardID.
func (r *Router) Route(shardID int) (*indexer.Engine, error) {
	if shardID < 0 || shardID >= len(r.engines) {
		return nil, fmt.Errorf("%w: shard %d not in [0,%d)", apperrors.ErrInvalidInput, shardID, len(r.engines))
	}
	return r.engines[shardID], nil
}

// ShardFor returns the shard owning docID.
func (r *Router) ShardFor(docID string) int {
	return For(docID, len(r.engines))
}

// Dirs returns each shard's data directory in shard order.
func (r *Router) Dirs() []string {
	dirs := make([]string, len(r.engines))
	for id := range dirs {
		dirs[id] = shardDir(r.dataDir, id)
	}
	return dirs
}

func (r *Router) WithMetrics(m *metrics.Metrics) *Router {
	for _, engine := range r.engines {
		engine.WithMetrics(m)
	}
	return r
}

// Snapshot returns every shard's segments, shard 0 first, as one corpus
// with contiguous doc ids.
func (r *Router) Snapshot() *indexer.Snapshot {
	snaps := make([]*indexer.Snapshot, len(r.engines))
	for id, engine := range r.engines {
		snaps[id] = engine.Snapshot()
	}
	return indexer.Concat(snaps...)
}

// DocCount returns the number of live documents across shards.
func (r *Router) DocCount() int64 {
	var n int64
	for _, engine := range r.engines {
		n += engine.DocCount()
	}
	return n
}

// StartFlushLoops starts the periodic flush of every shard until ctx ends.
func (r *Router) StartFlushLoops(ctx context.Context) {
	for _, engine := range r.engines {
		engine.StartFlushLoop(ctx)
	}
}

// ReloadAll picks up segments and deletion sidecars written by another
// process and returns the number of changes across shards.
func (r *Router) ReloadAll() int {
	total := 0
	for _, engine := range r.engines {
		total += engine.ReloadSegments()
	}
	return total
}

// FlushAll writes every shard's in-memory documents to a segment.
func (r *Router) FlushAll() error {
	return r.each("flush", (*indexer.Engine).Flush)
}

// Close flushes and closes every shard.
func (r *Router) Close() error {
	return r.each("close", (*indexer.Engine).Close)
}

// each applies op to all shards, even after a failure, and joins the errors.
func (r *Router) each(name string, op func(*indexer.Engine) error) error {
	var errs []error
	for id, engine := range r.engines {
		if err := op(engine); err != nil {
			r.logger.Error(name+" failed", "shard_id", id, "error", err)
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
