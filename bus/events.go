// Package bus carries change events between the API process and the indexing
// worker over Kafka. One topic, keyed by entity id so every event for an
// entity lands on the same partition in order.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"notebase.evalgo.org/models"
)

// Event operations.
const (
	OpCreate = "c"
	OpUpdate = "u"
	OpDelete = "d"
)

// DocumentEvent announces a change to an uploaded document.
type DocumentEvent struct {
	Op          string         `json:"op"`
	TsMs        int64          `json:"ts_ms"`
	DocumentID  string         `json:"document_id"`
	Version     int            `json:"version"`
	DocMetadata models.JSONMap `json:"doc_metadata,omitempty"`
	OwnerID     string         `json:"owner_id"`
}

// URLSourceEvent announces a change to a URL or text source.
type URLSourceEvent struct {
	Op             string         `json:"op"`
	TsMs           int64          `json:"ts_ms"`
	SourceID       string         `json:"source_id"`
	Version        int            `json:"version"`
	SourceMetadata models.JSONMap `json:"source_metadata,omitempty"`
	OwnerID        string         `json:"owner_id"`
}

// NewDocumentEvent stamps a document event with the current time.
func NewDocumentEvent(op, documentID, ownerID string, version int, metadata models.JSONMap) DocumentEvent {
	return DocumentEvent{
		Op:          op,
		TsMs:        time.Now().UnixMilli(),
		DocumentID:  documentID,
		Version:     version,
		DocMetadata: metadata,
		OwnerID:     ownerID,
	}
}

// NewURLSourceEvent stamps a source event with the current time.
func NewURLSourceEvent(op, sourceID, ownerID string, version int, metadata models.JSONMap) URLSourceEvent {
	return URLSourceEvent{
		Op:             op,
		TsMs:           time.Now().UnixMilli(),
		SourceID:       sourceID,
		Version:        version,
		SourceMetadata: metadata,
		OwnerID:        ownerID,
	}
}

// Envelope is the decoded form of a consumed record. Exactly one of the two
// id fields is set, which tells the worker which pipeline the event belongs to.
type Envelope struct {
	Op       string
	TsMs     int64
	Version  int
	OwnerID  string
	Metadata models.JSONMap

	DocumentID string
	SourceID   string
}

// EntityID returns whichever logical id the envelope carries.
func (e Envelope) EntityID() string {
	if e.DocumentID != "" {
		return e.DocumentID
	}
	return e.SourceID
}

// IsDocument reports whether the event addresses an uploaded document.
func (e Envelope) IsDocument() bool {
	return e.DocumentID != ""
}

// DecodeEnvelope parses a raw record value into an Envelope. Records that
// carry neither id are malformed and rejected; the consumer skips them after
// logging rather than blocking the partition.
func DecodeEnvelope(value []byte) (Envelope, error) {
	var raw struct {
		Op             string         `json:"op"`
		TsMs           int64          `json:"ts_ms"`
		Version        int            `json:"version"`
		OwnerID        string         `json:"owner_id"`
		DocumentID     string         `json:"document_id"`
		SourceID       string         `json:"source_id"`
		DocMetadata    models.JSONMap `json:"doc_metadata"`
		SourceMetadata models.JSONMap `json:"source_metadata"`
	}
	if err := json.Unmarshal(value, &raw); err != nil {
		return Envelope{}, fmt.Errorf("malformed event payload: %w", err)
	}

	env := Envelope{
		Op:         raw.Op,
		TsMs:       raw.TsMs,
		Version:    raw.Version,
		OwnerID:    raw.OwnerID,
		DocumentID: raw.DocumentID,
		SourceID:   raw.SourceID,
	}
	switch {
	case raw.DocumentID != "":
		env.Metadata = raw.DocMetadata
	case raw.SourceID != "":
		env.Metadata = raw.SourceMetadata
	default:
		return Envelope{}, fmt.Errorf("event carries neither document_id nor source_id")
	}

	switch raw.Op {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return Envelope{}, fmt.Errorf("unknown event op %q", raw.Op)
	}

	return env, nil
}
