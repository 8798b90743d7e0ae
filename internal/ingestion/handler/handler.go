// Package handler serves the document ingestion HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/logger"
)

// maxRequestBytes leaves room for JSON escaping around the largest body
// the validator accepts.
const maxRequestBytes = 4 << 20

// DocumentPublisher is implemented by *publisher.Publisher.
type DocumentPublisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	Delete(ctx context.Context, id string) (*ingestion.IngestResponse, error)
}

type Handler struct {
	publisher DocumentPublisher
	logger    *slog.Logger
}

func New(pub DocumentPublisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the document routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.Delete)
}

// Ingest serves POST /api/v1/documents.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		var invalid *validator.ValidationError
		if !errors.As(err, &invalid) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": invalid.Fields,
		})
		return
	}

	resp, err := h.publisher.Ingest(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "ingestion failed", err, "doc_id", req.DocumentID)
		return
	}
	logger.FromContext(r.Context()).Info("document ingested", "doc_id", resp.DocumentID, "shard_id", resp.ShardID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Delete serves DELETE /api/v1/documents/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "document id is required")
		return
	}
	resp, err := h.publisher.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete failed", err, "doc_id", id)
		return
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

// fail logs a publisher error and maps it onto a status code. Only
// not-found is reported to the client verbatim.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Error(message, append(attrs, "error", err, "status_code", status)...)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		message = "document not found"
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
