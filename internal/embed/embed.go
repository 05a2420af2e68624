// Package embed provides the text embedders the memory store can be wired to.
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

var (
	ErrAPIKeyRequired = errors.New("API key is required")
	ErrNoEmbedding    = errors.New("no embedding returned")
)

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
