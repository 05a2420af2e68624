package embed

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto"

	"github.com/felixgeelhaar/mnemo/internal/vector"
)

// Cached memoizes another embedder's vectors in a ristretto cache. Repeated
// queries skip the remote call.
type Cached struct {
	next  Embedder
	cache *ristretto.Cache

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCached caches up to size vectors from next.
func NewCached(next Embedder, size int) (*Cached, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be positive, got %d", size)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		c.hits.Add(1)
		return vector.Clone(v.([]float32)), nil
	}
	c.misses.Add(1)

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vector.Clone(vec), 1)
	return vec, nil
}

func (c *Cached) Dimensions() int {
	return c.next.Dimensions()
}

// Wait blocks until pending cache writes are visible.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Counts reports cache hits and misses.
func (c *Cached) Counts() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Close releases the cache and closes the wrapped embedder if it can be closed.
func (c *Cached) Close() error {
	c.cache.Close()
	if closer, ok := c.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
