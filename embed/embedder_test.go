package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmbeddingsAPI struct {
	mock.Mock
}

func (m *mockEmbeddingsAPI) New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	args := m.Called(ctx, body)
	if out := args.Get(0); out != nil {
		return out.(*openai.CreateEmbeddingResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func embeddingResponse(vectors ...[]float64) *openai.CreateEmbeddingResponse {
	resp := &openai.CreateEmbeddingResponse{}
	for i, v := range vectors {
		resp.Data = append(resp.Data, openai.Embedding{Embedding: v, Index: int64(i)})
	}
	return resp
}

func TestEmbedReturnsOrderedVectors(t *testing.T) {
	api := new(mockEmbeddingsAPI)
	api.On("New", mock.Anything, mock.Anything).Return(embeddingResponse(
		[]float64{0.1, 0.2},
		[]float64{0.3, 0.4},
	), nil)

	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)
	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestEmbedEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedderWithAPI(new(mockEmbeddingsAPI), "text-embedding-3-small", 2)
	vectors, err := e.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbedCountMismatch(t *testing.T) {
	api := new(mockEmbeddingsAPI)
	api.On("New", mock.Anything, mock.Anything).Return(embeddingResponse([]float64{0.1, 0.2}), nil)

	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)
	_, err := e.Embed(context.Background(), []string{"first", "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestEmbedDimensionMismatch(t *testing.T) {
	api := new(mockEmbeddingsAPI)
	api.On("New", mock.Anything, mock.Anything).Return(embeddingResponse([]float64{0.1, 0.2, 0.3}), nil)

	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)
	_, err := e.Embed(context.Background(), []string{"first"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedPropagatesProviderError(t *testing.T) {
	api := new(mockEmbeddingsAPI)
	api.On("New", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))

	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)
	_, err := e.Embed(context.Background(), []string{"first"})
	require.Error(t, err)
}

func TestEmbedBatchesLargeInput(t *testing.T) {
	api := new(mockEmbeddingsAPI)
	api.On("New", mock.Anything, mock.MatchedBy(func(body openai.EmbeddingNewParams) bool {
		return len(body.Input.OfArrayOfStrings) == maxBatchSize
	})).Return(embeddingResponse(repeatVector(maxBatchSize)...), nil).Once()
	api.On("New", mock.Anything, mock.MatchedBy(func(body openai.EmbeddingNewParams) bool {
		return len(body.Input.OfArrayOfStrings) == 5
	})).Return(embeddingResponse(repeatVector(5)...), nil).Once()

	texts := make([]string, maxBatchSize+5)
	for i := range texts {
		texts[i] = "chunk"
	}

	e := NewOpenAIEmbedderWithAPI(api, "text-embedding-3-small", 2)
	vectors, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, maxBatchSize+5)
	api.AssertExpectations(t)
}

func repeatVector(n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{0.5, 0.5}
	}
	return out
}
