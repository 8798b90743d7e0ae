package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventHitsQuery EventType = "hits_query"
	EventIndexDoc  EventType = "index_document"
	EventDeleteDoc EventType = "delete_document"
)

// HitsEvent describes one answered (or failed) hits request.
type HitsEvent struct {
	Type         EventType `json:"type"`
	QueryID      string    `json:"query_id,omitempty"`
	Query        string    `json:"query"`
	Normalized   string    `json:"normalized,omitempty"`
	Sort         string    `json:"sort,omitempty"`
	Group        string    `json:"group,omitempty"`
	Processed    int64     `json:"processed"`
	Counted      int64     `json:"counted"`
	Returned     int       `json:"returned"`
	Groups       int       `json:"groups,omitempty"`
	LimitReached bool      `json:"limit_reached,omitempty"`
	Segments     int       `json:"segments"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id"`
	ShardID    int       `json:"shard_id"`
	TokenCount int       `json:"token_count,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Decode reads an event published by a Collector and returns a HitsEvent or
// an IndexEvent depending on its type.
func Decode(value []byte) (any, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch head.Type {
	case EventHitsQuery:
		var e HitsEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding hits event: %w", err)
		}
		return e, nil
	case EventIndexDoc, EventDeleteDoc:
		var e IndexEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding index event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", head.Type)
	}
}
