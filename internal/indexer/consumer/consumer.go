// Package consumer reads ingestion events from Kafka and applies them to the
// corpus index, routing documents through the shard router for partitioned
// indexing.
package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// IngestEvent is the Kafka message payload describing a change to one
// document. An empty Op means OpIndex. A negative ShardID lets the router
// pick the shard from the document id.
type IngestEvent struct {
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ShardID    int       `json:"shard_id"`
	Op         string    `json:"op,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Index is the part of an engine the consumer writes to.
type Index interface {
	IndexDocument(docID, title, body string) error
	DeleteDocument(docID string) (bool, error)
}

// IndexTracker receives one analytics event per applied ingest event.
type IndexTracker interface {
	TrackIndex(event analytics.IndexEvent)
}

type options struct {
	tracker IndexTracker
}

type Option func(*options)

// WithTracker reports every indexed or deleted document to t.
func WithTracker(t IndexTracker) Option {
	return func(o *options) { o.tracker = t }
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessageSharded returns a Kafka MessageHandler that routes each ingest
// event to the correct shard engine via the Router before applying it.
// If db is non-nil, the document status is updated in PostgreSQL afterwards.
func HandleMessageSharded(router *shard.Router, db *sql.DB, opts ...Option) kafka.MessageHandler {
	return handle(func(event IngestEvent) (Index, error) {
		shardID := event.ShardID
		if shardID < 0 {
			shardID = router.ShardFor(event.DocumentID)
		}
		engine, err := router.Route(shardID)
		if err != nil {
			return nil, fmt.Errorf("routing shard %d: %w", shardID, err)
		}
		return engine, nil
	}, db, opts)
}

// HandleMessage returns a Kafka MessageHandler that applies every ingest
// event to a single (non-sharded) index.
func HandleMessage(idx Index, db *sql.DB, opts ...Option) kafka.MessageHandler {
	return handle(func(IngestEvent) (Index, error) { return idx, nil }, db, opts)
}

func handle(route func(IngestEvent) (Index, error), db *sql.DB, opts []Option) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		idx, err := route(event)
		if err != nil {
			return err
		}
		logger.Debug("processing ingest event",
			"doc_id", event.DocumentID,
			"shard_id", event.ShardID,
			"op", event.Op,
		)
		start := time.Now()
		if err := apply(ctx, idx, event, db, logger); err != nil {
			return err
		}
		if o.tracker != nil && (event.Op == "" || event.Op == OpIndex || event.Op == OpDelete) {
			typ := analytics.EventIndexDoc
			if event.Op == OpDelete {
				typ = analytics.EventDeleteDoc
			}
			o.tracker.TrackIndex(analytics.IndexEvent{
				Type:       typ,
				DocumentID: event.DocumentID,
				ShardID:    event.ShardID,
				LatencyMs:  time.Since(start).Milliseconds(),
				Timestamp:  time.Now().UTC(),
			})
		}
		return nil
	}
}

func apply(ctx context.Context, idx Index, event IngestEvent, db *sql.DB, logger *slog.Logger) error {
	switch event.Op {
	case "", OpIndex:
		if err := idx.IndexDocument(event.DocumentID, event.Title, event.Body); err != nil {
			updateDocStatus(ctx, db, event.DocumentID, "FAILED", logger)
			return fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
		}
		updateDocStatus(ctx, db, event.DocumentID, "INDEXED", logger)
		logger.Info("document indexed", "doc_id", event.DocumentID)
	case OpDelete:
		found, err := idx.DeleteDocument(event.DocumentID)
		if err != nil {
			return fmt.Errorf("deleting document %s: %w", event.DocumentID, err)
		}
		updateDocStatus(ctx, db, event.DocumentID, "DELETED", logger)
		logger.Info("document deleted", "doc_id", event.DocumentID, "found", found)
	default:
		logger.Warn("ignoring ingest event with unknown op",
			"doc_id", event.DocumentID,
			"op", event.Op,
		)
	}
	return nil
}

// updateDocStatus updates the document's status and indexed_at timestamp in PostgreSQL.
// If db is nil, the update is silently skipped.
func updateDocStatus(ctx context.Context, db *sql.DB, docID, status string, logger *slog.Logger) {
	if db == nil {
		return
	}
	_, err := db.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, docID,
	)
	if err != nil {
		logger.Error("failed to update document status",
			"doc_id", docID,
			"status", status,
			"error", err,
		)
	}
}
