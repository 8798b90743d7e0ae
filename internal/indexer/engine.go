package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/metrics"
)

// Engine owns one data directory: an in-memory index for new documents and
// the flushed segments. Only flushed documents are visible to snapshots.
type Engine struct {
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	readers  []*segment.Reader
	loaded   map[string]struct{}
	readerMu sync.RWMutex
	// flushMu orders flushes and deletes so a delete never misses a doc
	// that is between the memory index and its segment.
	flushMu sync.Mutex
	cfg     config.IndexerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		loaded:   make(map[string]struct{}),
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer", "data_dir", cfg.DataDir),
	}
	if err := e.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// WithMetrics reports indexing, flushes and open segments to m.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	e.observeSegments()
	return e
}

// IndexDocument adds a document to the memory index, flushing when the index
// outgrows the configured segment size. Re-indexing an id replaces the old
// copy.
func (e *Engine) IndexDocument(docID string, title string, body string) error {
	if _, err := e.deleteFlushed(docID); err != nil {
		return fmt.Errorf("replacing document %s: %w", docID, err)
	}
	doc := e.memIndex.AddDocument(docID, title, body)
	if e.metrics != nil {
		e.metrics.DocsIndexedTotal.Inc()
	}
	e.logger.Debug("document indexed in memory",
		"doc_id", docID,
		"local_doc", doc,
		"mem_size", e.memIndex.Size(),
	)
	if e.memIndex.Size() >= e.cfg.SegmentMaxSize {
		e.logger.Info("memory index reached max size, flushing to disk",
			"size", e.memIndex.Size(),
			"threshold", e.cfg.SegmentMaxSize,
		)
		if err := e.Flush(); err != nil {
			return fmt.Errorf("flushing memory index: %w", err)
		}
	}
	return nil
}

// DeleteDocument removes a document wherever it lives. It reports whether a
// live copy was found.
func (e *Engine) DeleteDocument(docID string) (bool, error) {
	found := e.memIndex.Delete(docID)
	flushed, err := e.deleteFlushed(docID)
	if err != nil {
		return found, fmt.Errorf("deleting document %s: %w", docID, err)
	}
	e.logger.Debug("document deleted", "doc_id", docID, "found", found || flushed)
	return found || flushed, nil
}

func (e *Engine) deleteFlushed(docID string) (bool, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()

	found := false
	for _, r := range readers {
		doc, ok := r.Lookup(docID)
		if !ok {
			continue
		}
		changed, err := r.Delete(doc)
		if err != nil {
			return found, fmt.Errorf("segment %s: %w", r.Name(), err)
		}
		found = found || changed
	}
	return found, nil
}

// Flush writes the memory index to a new segment and makes it visible.
func (e *Engine) Flush() error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	flushed, err := e.flushLocked()
	if e.metrics != nil && (flushed || err != nil) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.IndexFlushesTotal.WithLabelValues(status).Inc()
	}
	return err
}

// flushLocked reports whether a segment was written.
func (e *Engine) flushLocked() (bool, error) {
	snapshot := e.memIndex.Drain()
	if len(snapshot.Docs) == 0 {
		return false, nil
	}
	segmentName, err := e.writer.Write(snapshot)
	if err != nil {
		return false, fmt.Errorf("writing segment: %w", err)
	}

	segPath := filepath.Join(e.cfg.DataDir, segmentName)
	reader, err := segment.OpenReader(segPath)
	if err != nil {
		return false, fmt.Errorf("opening new segment for reading: %w", err)
	}
	e.readerMu.Lock()
	e.readers = append(e.readers, reader)
	e.loaded[segmentName] = struct{}{}
	active := len(e.readers)
	e.readerMu.Unlock()
	e.observeSegments()
	e.logger.Info("segment flushed",
		"segment", segmentName,
		"terms", reader.Terms(),
		"docs", reader.DocCount(),
		"active_segments", active,
	)
	return true, nil
}

// Snapshot returns the current segments with their doc bases.
func (e *Engine) Snapshot() *Snapshot {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return newSnapshot(e.readers)
}

// ReloadSegments opens segments written by another process since the last
// scan and re-reads every deleted-docs sidecar. It returns the number of
// segments and sidecars that changed.
func (e *Engine) ReloadSegments() int {
	names, err := e.segmentFiles()
	if err != nil {
		e.logger.Error("scanning data directory", "error", err)
		return 0
	}
	changed := 0
	for _, name := range names {
		e.readerMu.RLock()
		_, seen := e.loaded[name]
		e.readerMu.RUnlock()
		if seen {
			continue
		}
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			e.logger.Error("failed to open new segment, skipping", "segment", name, "error", err)
			continue
		}
		e.readerMu.Lock()
		e.readers = append(e.readers, reader)
		e.loaded[name] = struct{}{}
		e.readerMu.Unlock()
		changed++
		e.logger.Info("loaded new segment", "segment", name, "docs", reader.DocCount())
	}

	e.readerMu.RLock()
	readers := make([]*segment.Reader, len(e.readers))
	copy(readers, e.readers)
	e.readerMu.RUnlock()
	for _, r := range readers {
		ok, err := r.ReloadDeletes()
		if err != nil {
			e.logger.Error("reloading deleted docs", "segment", r.Name(), "error", err)
			continue
		}
		if ok {
			changed++
		}
	}
	if changed > 0 {
		e.observeSegments()
	}
	return changed
}

// DocCount returns the number of live documents, flushed or not.
func (e *Engine) DocCount() int64 {
	return int64(e.Snapshot().LiveDocs()) + int64(e.memIndex.DocCount())
}

// SegmentCount returns the number of open segments.
func (e *Engine) SegmentCount() int {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return len(e.readers)
}

func (e *Engine) StartFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("flush loop stopping, performing final flush")
				if err := e.Flush(); err != nil {
					e.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					if err := e.Flush(); err != nil {
						e.logger.Error("periodic flush failed", "error", err)
					}
				}
			}
		}
	}()
}

func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.logger.Error("final flush on close failed", "error", err)
	}
	e.readerMu.Lock()
	defer e.readerMu.Unlock()
	for _, reader := range e.readers {
		if err := reader.Close(); err != nil {
			e.logger.Error("closing segment reader", "error", err)
		}
	}
	e.readers = nil
	return nil
}

func (e *Engine) observeSegments() {
	if e.metrics == nil {
		return
	}
	e.metrics.ActiveSegments.WithLabelValues(filepath.Base(e.cfg.DataDir)).Set(float64(e.SegmentCount()))
}

// segmentFiles lists segment file names in creation order.
func (e *Engine) segmentFiles() ([]string, error) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.Extension) {
			segFiles = append(segFiles, entry.Name())
		}
	}
	sort.Strings(segFiles)
	return segFiles, nil
}

func (e *Engine) loadExistingSegments() error {
	segFiles, err := e.segmentFiles()
	if err != nil {
		return err
	}
	for _, name := range segFiles {
		path := filepath.Join(e.cfg.DataDir, name)
		reader, err := segment.OpenReader(path)
		if err != nil {
			e.logger.Error("failed to open segment, skipping",
				"segment", name,
				"error", err,
			)
			continue
		}
		e.readers = append(e.readers, reader)
		e.loaded[name] = struct{}{}
		e.logger.Info("loaded existing segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.logger.Info("segment recovery complete", "segments_loaded", len(e.readers))
	return nil
}
