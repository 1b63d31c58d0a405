// Package embed turns extracted text into fixed-dimension vectors and splits
// long documents into overlapping chunks before embedding.
package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"notebase.evalgo.org/config"
)

// maxBatchSize bounds how many inputs go into one embeddings request.
const maxBatchSize = 100

// Embedder produces one vector per input text. Implementations must return
// exactly len(texts) vectors of Dimension() length or an error.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Health(ctx context.Context) error
}

// EmbeddingsAPI is the subset of the OpenAI client the embedder uses.
type EmbeddingsAPI interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAIEmbedder embeds text through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	api       EmbeddingsAPI
	model     string
	dimension int
}

// NewOpenAIEmbedder builds the production embedder from configuration.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &OpenAIEmbedder{
		api:       &client.Embeddings,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

// NewOpenAIEmbedderWithAPI wires an explicit API client, used by tests.
func NewOpenAIEmbedderWithAPI(api EmbeddingsAPI, model string, dimension int) *OpenAIEmbedder {
	return &OpenAIEmbedder{api: api, model: model, dimension: dimension}
}

// Dimension returns the vector size the model produces.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns one vector per input, preserving order. Inputs are sent in
// batches to stay under the API's request limits.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := e.api.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts[start:end]},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: requested %d, got %d", end-start, len(resp.Data))
		}

		for _, item := range resp.Data {
			vec := make([]float32, len(item.Embedding))
			for i, v := range item.Embedding {
				vec[i] = float32(v)
			}
			if len(vec) != e.dimension {
				return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dimension, len(vec))
			}
			out = append(out, vec)
		}
	}

	return out, nil
}

// Health embeds a short fixed string to verify the provider is reachable.
func (e *OpenAIEmbedder) Health(ctx context.Context) error {
	_, err := e.Embed(ctx, []string{"ping"})
	return err
}
