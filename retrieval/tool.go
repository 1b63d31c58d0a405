// Package retrieval implements the source lookup tool exposed to the chat
// assistant. It embeds the query, searches the vector index restricted to
// the sources selected in the conversation, and renders hits as a compact
// text block the model can quote from.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"notebase.evalgo.org/embed"
	"notebase.evalgo.org/vector"
)

const (
	// NoSourcesMessage is returned when the conversation has no selection.
	NoSourcesMessage = "No sources selected. Please select at least one source and try again."

	defaultTopK    = 5
	maxTopK        = 50
	scoreThreshold = 0.2
	previewLength  = 300
)

var selectedSourcesPattern = regexp.MustCompile(`List of currently selected source IDs for RAG retrieval:\s*\[(.*?)\]`)

// ParseSelectedSources pulls the selected source ids out of the system
// context block embedded in a conversation. Returns nil when the marker is
// absent or the list is empty.
func ParseSelectedSources(text string) []string {
	m := selectedSourcesPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	var ids []string
	for _, part := range strings.Split(m[1], ",") {
		id := strings.Trim(strings.TrimSpace(part), `'"`)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Searcher is the vector index operation the tool depends on.
type Searcher interface {
	Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float32, filter *vector.Filter) ([]vector.Hit, error)
}

// Tool answers retrieval requests against the selected sources.
type Tool struct {
	embedder embed.Embedder
	index    Searcher
}

// NewTool wires the retrieval tool.
func NewTool(embedder embed.Embedder, index Searcher) *Tool {
	return &Tool{embedder: embedder, index: index}
}

// LookUpSources searches the selected sources for passages relevant to the
// query and formats them for the model. The search is always pinned to the
// owner, so selected ids belonging to other users match nothing. An empty
// selection short-circuits with a fixed message instead of searching
// everything; topK defaults to 5 and is clamped to 50.
func (t *Tool) LookUpSources(ctx context.Context, ownerID, query string, topK int, selectedIDs []string) (string, error) {
	if len(selectedIDs) == 0 {
		return NoSourcesMessage, nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	vectors, err := t.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return "", fmt.Errorf("expected one query embedding, got %d", len(vectors))
	}

	hits, err := t.index.Search(ctx, vectors[0], topK, scoreThreshold, vector.OwnedSelectionFilter(ownerID, selectedIDs))
	if err != nil {
		return "", fmt.Errorf("source lookup failed: %w", err)
	}
	if len(hits) == 0 {
		return "No relevant passages found in the selected sources.", nil
	}

	return FormatHits(hits), nil
}

// FormatHits renders search hits as a numbered list with score, source
// reference, optional URL and a bounded text preview.
func FormatHits(hits []vector.Hit) string {
	var sb strings.Builder
	for i, hit := range hits {
		ref := payloadString(hit.Payload, "document_id")
		if ref == "" {
			ref = payloadString(hit.Payload, "source_id")
		}

		fmt.Fprintf(&sb, "%d. score=%.4f ref=<%s>", i+1, hit.Score, ref)
		if url := payloadString(hit.Payload, "url"); url != "" {
			fmt.Fprintf(&sb, " url=%s", url)
		}
		sb.WriteString("\n")
		sb.WriteString(preview(payloadString(hit.Payload, "chunk_text")))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "…"
}
