package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"notebase.evalgo.org/embed"
	"notebase.evalgo.org/retrieval"
	"notebase.evalgo.org/vector"
)

// VectorSearcher is the vector index surface the search service uses.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float32, filter *vector.Filter) ([]vector.Hit, error)
	Ping(ctx context.Context) error
}

// SearchResult is one semantic search hit for the API surface.
type SearchResult struct {
	Score      float32                `json:"score"`
	DocumentID string                 `json:"document_id,omitempty"`
	SourceID   string                 `json:"source_id,omitempty"`
	ChunkIndex int64                  `json:"chunk_index"`
	ChunkText  string                 `json:"chunk_text"`
	Filename   string                 `json:"filename,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResponse is the full search payload.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
	Query   string         `json:"query"`
}

// SearchHealth reports dependency reachability for the search surface.
type SearchHealth struct {
	Qdrant bool   `json:"qdrant"`
	OpenAI bool   `json:"openai"`
	Status string `json:"status"`
}

// Search runs an owner-wide semantic query over all of the user's indexed
// content. The owner filter is mandatory; results never cross users.
type Search struct {
	embedder embed.Embedder
	index    VectorSearcher
	tool     *retrieval.Tool
}

// NewSearch wires the search service.
func NewSearch(embedder embed.Embedder, index VectorSearcher) *Search {
	return &Search{
		embedder: embedder,
		index:    index,
		tool:     retrieval.NewTool(embedder, index),
	}
}

// Documents searches the owner's corpus. Limit is clamped to 50 and the
// score threshold to [0, 1].
func (s *Search) Documents(ctx context.Context, ownerID uuid.UUID, query string, limit int, scoreThreshold float32) (*SearchResponse, error) {
	if query == "" {
		return nil, Wrap(ErrValidation, "query is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	if scoreThreshold < 0 || scoreThreshold > 1 {
		scoreThreshold = 0.2
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, Wrap(ErrExternalUnavailable, "embedding service failed: %v", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected one query embedding, got %d", len(vectors))
	}

	hits, err := s.index.Search(ctx, vectors[0], limit, scoreThreshold, vector.OwnerFilter(ownerID.String()))
	if err != nil {
		return nil, Wrap(ErrExternalUnavailable, "vector search failed: %v", err)
	}

	resp := &SearchResponse{Query: query, Results: make([]SearchResult, 0, len(hits))}
	for _, hit := range hits {
		result := SearchResult{
			Score:      hit.Score,
			DocumentID: stringField(hit.Payload, "document_id"),
			SourceID:   stringField(hit.Payload, "source_id"),
			ChunkText:  stringField(hit.Payload, "chunk_text"),
			Filename:   stringField(hit.Payload, "filename"),
			URL:        stringField(hit.Payload, "url"),
		}
		if idx, ok := hit.Payload["chunk_index"].(int64); ok {
			result.ChunkIndex = idx
		}
		if meta, ok := hit.Payload["metadata"].(map[string]interface{}); ok {
			result.Metadata = meta
		}
		resp.Results = append(resp.Results, result)
	}
	resp.Total = len(resp.Results)
	return resp, nil
}

// LookUpSources answers a retrieval tool call scoped to the owner and an
// explicit source selection. When the caller passes no ids the selection is
// parsed out of the conversation context block; an empty selection returns
// the fixed no-sources message without searching.
func (s *Search) LookUpSources(ctx context.Context, ownerID uuid.UUID, query string, topK int, selectedIDs []string, contextBlock string) (string, error) {
	if query == "" {
		return "", Wrap(ErrValidation, "query is required")
	}
	if len(selectedIDs) == 0 {
		selectedIDs = retrieval.ParseSelectedSources(contextBlock)
	}

	text, err := s.tool.LookUpSources(ctx, ownerID.String(), query, topK, selectedIDs)
	if err != nil {
		return "", Wrap(ErrExternalUnavailable, "source lookup failed: %v", err)
	}
	return text, nil
}

// Health checks both search dependencies.
func (s *Search) Health(ctx context.Context) SearchHealth {
	h := SearchHealth{
		Qdrant: s.index.Ping(ctx) == nil,
		OpenAI: s.embedder.Health(ctx) == nil,
	}
	if h.Qdrant && h.OpenAI {
		h.Status = "healthy"
	} else {
		h.Status = "degraded"
	}
	return h
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
