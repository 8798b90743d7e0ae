// Package ingestion defines the request and response types of the document
// ingestion API, which feeds the indexer through Kafka.
package ingestion

import "time"

const (
	StatusPending = "PENDING"
	StatusDeleted = "DELETED"
)

// IngestRequest is the JSON body accepted by POST /api/v1/documents. An
// empty DocumentID gets a generated one.
type IngestRequest struct {
	DocumentID     string `json:"document_id,omitempty"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// IngestResponse is returned once a document change has been accepted.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	ShardID    int    `json:"shard_id"`
}

// Document is the metadata row kept for every ingested document.
type Document struct {
	ID             string
	Title          string
	ContentHash    string
	ContentSize    int
	ShardID        int
	IdempotencyKey string
	Status         string
	CreatedAt      time.Time
}
