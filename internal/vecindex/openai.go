package vecindex

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder produces vectors through an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	api   *openai.Client
	model string
	dim   int
}

// NewOpenAIEmbedder creates an embedder for the given endpoint and model.
func NewOpenAIEmbedder(baseURL, apiKey, modelName string, dim int) *OpenAIEmbedder {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		dim:   dim,
	}
}

func (e *OpenAIEmbedder) ModelID() string { return e.model }

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API call: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		vec := d.Embedding
		if len(vec) != e.dim {
			return nil, fmt.Errorf("model %s returned dimension %d, expected %d", e.model, len(vec), e.dim)
		}
		// Stored vectors must be unit length for Dot to be cosine.
		Normalize(vec)
		vecs[d.Index] = vec
	}
	return vecs, nil
}
