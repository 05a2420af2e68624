package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
	dim    int
}

// NewOllama creates an Ollama embedder. An empty baseURL falls back to
// OLLAMA_HOST and then to the default local address. dim may be 0 when the
// model's output length is not known up front.
func NewOllama(baseURL, model string, dim int) (*Ollama, error) {
	if model == "" {
		model = defaultOllamaModel
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
		if envURL := os.Getenv("OLLAMA_HOST"); envURL != "" {
			baseURL = envURL
		}
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &Ollama{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
		dim:    dim,
	}, nil
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  o.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: %w", ErrNoEmbedding)
	}
	return toFloat32(resp.Embedding), nil
}

func (o *Ollama) Dimensions() int {
	return o.dim
}
