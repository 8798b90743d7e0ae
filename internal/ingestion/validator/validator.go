// Package validator checks ingestion requests and reports per-field errors.
package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion"
)

const (
	maxTitleLength = 1024
	maxBodyLength  = 1 << 20
	maxIDLength    = 255
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// ValidateIngestRequest checks field lengths and returns a ValidationError
// naming every offending field.
func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)

	// Titles are optional; the hits view only renders body words.
	if len(req.Title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		errs["body"] = "body is required and must not be empty"
	} else if len(body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d characters", maxBodyLength)
	}
	if len(req.DocumentID) > maxIDLength || strings.TrimSpace(req.DocumentID) != req.DocumentID {
		errs["document_id"] = fmt.Sprintf("document id must be at most %d characters without surrounding spaces", maxIDLength)
	}
	if len(req.IdempotencyKey) > maxIDLength {
		errs["idempotency_key"] = fmt.Sprintf("idempotency key must be at most %d characters", maxIDLength)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
