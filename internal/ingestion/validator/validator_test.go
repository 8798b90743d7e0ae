package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion"
)

func TestValidateIngestRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    ingestion.IngestRequest
		fields []string
	}{
		{"valid", ingestion.IngestRequest{Title: "t", Body: "some words"}, nil},
		{"title optional", ingestion.IngestRequest{Body: "some words"}, nil},
		{"blank body", ingestion.IngestRequest{Body: "  \n"}, []string{"body"}},
		{"long title", ingestion.IngestRequest{Title: strings.Repeat("x", 1025), Body: "b"}, []string{"title"}},
		{"padded id", ingestion.IngestRequest{DocumentID: " a", Body: "b"}, []string{"document_id"}},
		{"long key", ingestion.IngestRequest{Body: "b", IdempotencyKey: strings.Repeat("k", 256)}, []string{"idempotency_key"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestRequest(&tt.req)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			for _, f := range tt.fields {
				assert.Contains(t, verr.Fields, f)
			}
		})
	}
}

func TestValidationErrorIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"title": "x", "body": "y"}}
	assert.Equal(t, "body:y; title:x", err.Error())
}
