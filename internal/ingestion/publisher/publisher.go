// Package publisher records document metadata and publishes ingest events to
// Kafka for the indexer. Documents are assigned to the shard the indexer's
// router would pick, and writes are idempotent per idempotency key.
package publisher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/kafka"
)

// Store persists document metadata.
type Store interface {
	Create(ctx context.Context, doc ingestion.Document) error
	FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error)
	Get(ctx context.Context, id string) (*ingestion.Document, error)
}

// EventPublisher is the part of kafka.Producer the publisher needs.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	store     Store
	producer  EventPublisher
	numShards int
	logger    *slog.Logger
}

func New(store Store, producer EventPublisher, numShards int) *Publisher {
	return &Publisher{
		store:     store,
		producer:  producer,
		numShards: numShards,
		logger:    slog.Default().With("component", "publisher"),
	}
}

// Ingest stores the document as PENDING and publishes an index event.
// Duplicate idempotency keys return the original document. A publish failure
// leaves the document PENDING and is reported to the caller.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := p.store.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("checking idempotency key: %w", err)
		}
		if existing != nil {
			p.logger.Info("duplicate ingestion detected",
				"idempotency_key", req.IdempotencyKey,
				"existing_id", existing.DocumentID,
			)
			return existing, nil
		}
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	doc := ingestion.Document{
		ID:             docID,
		Title:          req.Title,
		ContentHash:    fmt.Sprintf("%x", sha256.Sum256([]byte(req.Body))),
		ContentSize:    len(req.Body),
		ShardID:        shard.For(docID, p.numShards),
		IdempotencyKey: req.IdempotencyKey,
		Status:         ingestion.StatusPending,
	}
	if err := p.store.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	err := p.publish(ctx, consumer.IngestEvent{
		DocumentID: doc.ID,
		Title:      req.Title,
		Body:       req.Body,
		ShardID:    doc.ShardID,
		Op:         consumer.OpIndex,
		IngestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{
		DocumentID: doc.ID,
		Status:     ingestion.StatusPending,
		ShardID:    doc.ShardID,
	}, nil
}

// Delete publishes a delete event for a known document.
func (p *Publisher) Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error) {
	doc, err := p.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("looking up document: %w", err)
	}
	if doc == nil {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, 404, "document %s not found", id)
	}
	if doc.Status == ingestion.StatusDeleted {
		return &ingestion.IngestResponse{DocumentID: id, Status: doc.Status, ShardID: doc.ShardID}, nil
	}
	err = p.publish(ctx, consumer.IngestEvent{
		DocumentID: id,
		ShardID:    doc.ShardID,
		Op:         consumer.OpDelete,
		IngestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &ingestion.IngestResponse{DocumentID: id, Status: ingestion.StatusPending, ShardID: doc.ShardID}, nil
}

func (p *Publisher) publish(ctx context.Context, event consumer.IngestEvent) error {
	if err := p.producer.Publish(ctx, kafka.Event{Key: event.DocumentID, Value: event}); err != nil {
		p.logger.Error("failed to publish to kafka, document stuck in PENDING",
			"doc_id", event.DocumentID,
			"shard_id", event.ShardID,
			"op", event.Op,
			"error", err,
		)
		return fmt.Errorf("publishing %s event for %s: %w", event.Op, event.DocumentID, err)
	}
	return nil
}
