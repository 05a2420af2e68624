// Package memory is an in-process vector memory store: text items with
// embeddings, similarity search, per-item expiry and capacity-bounded eviction.
package memory

import (
	"context"
	"time"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions reports the vector length the embedder produces, or 0 if unknown.
	Dimensions() int
}

// Item represents a unit of memory.
type Item struct {
	ID        string
	Content   string
	Metadata  Metadata
	Embedding []float32

	CreatedAt  time.Time
	TTLSeconds int // 0 never expires

	LastAccessedAt time.Time
	AccessCount    int64
}

// ExpiresAt returns the instant after which the item is stale, and false when
// the item never expires.
func (i Item) ExpiresAt() (time.Time, bool) {
	if i.TTLSeconds <= 0 {
		return time.Time{}, false
	}
	return i.CreatedAt.Add(time.Duration(i.TTLSeconds) * time.Second), true
}

func (i Item) clone() Item {
	out := i
	out.Metadata = i.Metadata.Clone()
	if i.Embedding != nil {
		out.Embedding = make([]float32, len(i.Embedding))
		copy(out.Embedding, i.Embedding)
	}
	return out
}
