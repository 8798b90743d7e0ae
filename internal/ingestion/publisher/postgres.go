package publisher

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/postgres"
)

// documentsSchema also backs the status updates made by the indexer.
var documentsSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		content_hash    TEXT NOT NULL,
		content_size    INTEGER NOT NULL,
		shard_id        INTEGER NOT NULL,
		idempotency_key TEXT UNIQUE,
		status          TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		indexed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
}

// PGStore keeps document metadata in PostgreSQL.
type PGStore struct {
	db *postgres.Client
}

func NewPGStore(db *postgres.Client) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range documentsSchema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating documents schema: %w", err)
			}
		}
		return nil
	})
}

func (s *PGStore) Create(ctx context.Context, doc ingestion.Document) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, title, content_hash, content_size, shard_id, idempotency_key, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING`,
			doc.ID, doc.Title, doc.ContentHash, doc.ContentSize, doc.ShardID, nullableString(doc.IdempotencyKey), doc.Status)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperrors.New(apperrors.ErrConflict, 409, "document id or idempotency key already in use")
		}
		return nil
	})
}

func (s *PGStore) FindByIdempotencyKey(ctx context.Context, key string) (*ingestion.IngestResponse, error) {
	var resp ingestion.IngestResponse
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, status, shard_id FROM documents WHERE idempotency_key=$1`, key).Scan(&resp.DocumentID, &resp.Status, &resp.ShardID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying by idempotency key: %w", err)
	}
	return &resp, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*ingestion.Document, error) {
	var doc ingestion.Document
	var key sql.NullString
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, content_hash, content_size, shard_id, idempotency_key, status, created_at
		FROM documents WHERE id=$1`, id).
		Scan(&doc.ID, &doc.Title, &doc.ContentHash, &doc.ContentSize, &doc.ShardID, &key, &doc.Status, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	doc.IdempotencyKey = key.String
	return &doc, nil
}

// nullableString maps "" to NULL so unset idempotency keys never collide.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
