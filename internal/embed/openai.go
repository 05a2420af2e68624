package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI embeds text with the OpenAI embeddings API or a compatible server.
type OpenAI struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAI creates an OpenAI embedder. When dim is set it is sent as the
// requested output length, which the text-embedding-3 models honor.
func NewOpenAI(apiKey, baseURL, model string, dim int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	m := openai.SmallEmbedding3
	if model != "" {
		m = openai.EmbeddingModel(model)
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		model:  m,
		dim:    dim,
	}, nil
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{text},
		Model:      o.model,
		Dimensions: o.dim,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai: %w", ErrNoEmbedding)
	}
	return resp.Data[0].Embedding, nil
}

func (o *OpenAI) Dimensions() int {
	return o.dim
}
