package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notebase.evalgo.org/vector"
)

type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func (s *stubEmbedder) Dimension() int { return 2 }

func (s *stubEmbedder) Health(ctx context.Context) error { return nil }

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float32, filter *vector.Filter) ([]vector.Hit, error) {
	args := m.Called(ctx, embedding, limit, scoreThreshold, filter)
	if out := args.Get(0); out != nil {
		return out.([]vector.Hit), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestParseSelectedSources(t *testing.T) {
	text := "Some context.\nList of currently selected source IDs for RAG retrieval: ['doc-1', 'src-2']\nMore text."
	assert.Equal(t, []string{"doc-1", "src-2"}, ParseSelectedSources(text))
}

func TestParseSelectedSourcesDoubleQuotes(t *testing.T) {
	text := `List of currently selected source IDs for RAG retrieval: ["a", "b", "c"]`
	assert.Equal(t, []string{"a", "b", "c"}, ParseSelectedSources(text))
}

func TestParseSelectedSourcesEmptyList(t *testing.T) {
	assert.Nil(t, ParseSelectedSources("List of currently selected source IDs for RAG retrieval: []"))
}

func TestParseSelectedSourcesNoMarker(t *testing.T) {
	assert.Nil(t, ParseSelectedSources("nothing relevant here"))
}

func TestLookUpSourcesEmptySelection(t *testing.T) {
	tool := NewTool(&stubEmbedder{}, new(mockSearcher))
	out, err := tool.LookUpSources(context.Background(), "owner-1", "what is this about", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, NoSourcesMessage, out)
}

func TestLookUpSourcesPinsOwner(t *testing.T) {
	searcher := new(mockSearcher)
	var captured *vector.Filter
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(4).(*vector.Filter)
		}).Return([]vector.Hit{}, nil)

	tool := NewTool(&stubEmbedder{vectors: [][]float32{{0.1, 0.2}}}, searcher)
	// The selected id belongs to someone else; the filter must still carry
	// the caller's owner constraint so the search returns nothing.
	_, err := tool.LookUpSources(context.Background(), "owner-1", "query", 0, []string{"victim-src"})
	require.NoError(t, err)

	require.NotNil(t, captured)
	require.Len(t, captured.Must, 1)
	assert.Equal(t, "owner_id", captured.Must[0].GetField().GetKey())
	assert.Equal(t, "owner-1", captured.Must[0].GetField().GetMatch().GetKeyword())
}

func TestLookUpSourcesTopKBounds(t *testing.T) {
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything, defaultTopK, mock.Anything, mock.Anything).
		Return([]vector.Hit{}, nil).Once()
	searcher.On("Search", mock.Anything, mock.Anything, maxTopK, mock.Anything, mock.Anything).
		Return([]vector.Hit{}, nil).Once()

	tool := NewTool(&stubEmbedder{vectors: [][]float32{{0.1, 0.2}}}, searcher)
	_, err := tool.LookUpSources(context.Background(), "owner-1", "query", 0, []string{"src-1"})
	require.NoError(t, err)
	_, err = tool.LookUpSources(context.Background(), "owner-1", "query", 9999, []string{"src-1"})
	require.NoError(t, err)
	searcher.AssertExpectations(t)
}

func TestLookUpSourcesFormatsHits(t *testing.T) {
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, []float32{0.1, 0.2}, 10, float32(scoreThreshold), mock.Anything).Return([]vector.Hit{
		{
			Score: 0.92,
			Payload: map[string]interface{}{
				"document_id": "doc-1",
				"chunk_text":  "The relevant passage.",
			},
		},
		{
			Score: 0.45,
			Payload: map[string]interface{}{
				"source_id":  "src-2",
				"url":        "https://example.com/page",
				"chunk_text": strings.Repeat("long text ", 50),
			},
		},
	}, nil)

	tool := NewTool(&stubEmbedder{vectors: [][]float32{{0.1, 0.2}}}, searcher)
	out, err := tool.LookUpSources(context.Background(), "owner-1", "query", 10, []string{"doc-1", "src-2"})
	require.NoError(t, err)

	assert.Contains(t, out, "1. score=0.9200 ref=<doc-1>")
	assert.Contains(t, out, "The relevant passage.")
	assert.Contains(t, out, "2. score=0.4500 ref=<src-2> url=https://example.com/page")
	assert.Contains(t, out, "…")
}

func TestLookUpSourcesNoHits(t *testing.T) {
	searcher := new(mockSearcher)
	searcher.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]vector.Hit{}, nil)

	tool := NewTool(&stubEmbedder{vectors: [][]float32{{0.1, 0.2}}}, searcher)
	out, err := tool.LookUpSources(context.Background(), "owner-1", "query", 0, []string{"doc-1"})
	require.NoError(t, err)
	assert.Contains(t, out, "No relevant passages")
}

func TestLookUpSourcesEmbedderFailure(t *testing.T) {
	tool := NewTool(&stubEmbedder{err: errors.New("provider down")}, new(mockSearcher))
	_, err := tool.LookUpSources(context.Background(), "owner-1", "query", 0, []string{"doc-1"})
	require.Error(t, err)
}

func TestPreviewBoundsLongText(t *testing.T) {
	short := preview("short")
	assert.Equal(t, "short", short)

	long := preview(strings.Repeat("é", 400))
	assert.Equal(t, previewLength+1, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "…"))
}
