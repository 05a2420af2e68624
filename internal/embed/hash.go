package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/felixgeelhaar/mnemo/internal/vector"
)

// Hash is an offline embedder. It seeds a linear congruential generator with
// the FNV-64a hash of the text, so equal texts map to equal unit vectors.
// It carries no semantics beyond identity.
type Hash struct {
	dim int
}

// NewHash returns a hash embedder producing vectors of length dim.
func NewHash(dim int) *Hash {
	return &Hash{dim: dim}
}

func (h *Hash) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := fnv.New64a()
	f.Write([]byte(text))
	seed := f.Sum64()

	v := make([]float32, h.dim)
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	vector.Normalize(v)
	return v, nil
}

func (h *Hash) Dimensions() int {
	return h.dim
}
