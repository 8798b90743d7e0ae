// Package collector batches analytics events in memory and flushes them to
// Kafka in bulk. The indexer uses it for per-document events, which arrive
// far more often than hits queries.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	finalFlushTimeout    = 5 * time.Second
	// A failing broker may hold back this many batches before the oldest
	// events are dropped.
	backlogBatches = 3
)

// BatchPublisher is the part of kafka.Producer a BatchCollector needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector buffers events and publishes them when a batch fills or
// the flush interval passes. All publishing happens on the Start goroutine,
// so batches leave in the order they were tracked.
type BatchCollector struct {
	producer      BatchPublisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	buffer  []kafka.Event
	dropped atomic.Int64

	kick chan struct{}
	done chan struct{}
}

func NewBatchCollector(producer BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchCollector{
		producer:      producer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		buffer:        make([]kafka.Event, 0, batchSize),
		kick:          make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
}

// Start launches the flush loop, which runs until ctx is cancelled and then
// makes one last bounded flush.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				bc.flush(ctx)
			case <-bc.kick:
				bc.flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
				bc.flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Track buffers an event; a full batch wakes the flush loop.
func (bc *BatchCollector) Track(key string, value any) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: value})
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		select {
		case bc.kick <- struct{}{}:
		default:
		}
	}
}

// TrackIndex records an indexing or deletion event keyed by document id.
func (bc *BatchCollector) TrackIndex(event analytics.IndexEvent) {
	bc.Track(event.DocumentID, event)
}

// Close waits for the flush loop started by Start to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Dropped is the number of events discarded because the backlog overflowed.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

func (bc *BatchCollector) flush(ctx context.Context) {
	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.producer.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.requeue(batch)
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}

// requeue puts a failed batch back in front of newer events, keeping the
// newest backlogBatches worth.
func (bc *BatchCollector) requeue(batch []kafka.Event) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.buffer = append(batch, bc.buffer...)
	if limit := bc.batchSize * backlogBatches; len(bc.buffer) > limit {
		over := len(bc.buffer) - limit
		bc.buffer = bc.buffer[over:]
		bc.dropped.Add(int64(over))
		bc.logger.Warn("analytics backlog full, oldest events dropped", "dropped", over)
	}
}
