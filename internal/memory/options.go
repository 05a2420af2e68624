package memory

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

// Strategy names an eviction policy.
type Strategy string

const (
	StrategyFIFO Strategy = "fifo"
	StrategyLRU  Strategy = "lru"
	StrategyLFU  Strategy = "lfu"
	StrategyTTL  Strategy = "ttl"
)

const (
	DefaultLimit     = 10
	DefaultThreshold = 0.7
)

// Options configures a Store.
type Options struct {
	DefaultTTL         int // seconds, 0 = no expiry
	MaxItems           int
	EmbeddingDimension int
	RemovalStrategy    Strategy

	PersistToDisk       bool
	PersistenceInterval time.Duration
	SweepInterval       time.Duration // 0 disables the background prune

	// DisableAccessTracking turns off recency/frequency bookkeeping. The lru and
	// lfu strategies then evict in fifo order.
	DisableAccessTracking bool

	Persister Persister
	Sink      telemetry.Sink
	Clock     func() time.Time
}

// DefaultOptions returns the options used by the CLI when no config overrides them.
func DefaultOptions() Options {
	return Options{
		MaxItems:            10000,
		EmbeddingDimension:  384,
		RemovalStrategy:     StrategyFIFO,
		PersistToDisk:       true,
		PersistenceInterval: 5 * time.Minute,
		SweepInterval:       time.Minute,
	}
}

func (o Options) validate() error {
	switch {
	case o.MaxItems <= 0:
		return fmt.Errorf("%w: max items must be positive, got %d", ErrInvalidOptions, o.MaxItems)
	case o.EmbeddingDimension <= 0:
		return fmt.Errorf("%w: embedding dimension must be positive, got %d", ErrInvalidOptions, o.EmbeddingDimension)
	case o.DefaultTTL < 0:
		return fmt.Errorf("%w: default ttl %d", ErrInvalidTTL, o.DefaultTTL)
	case o.PersistenceInterval < 0:
		return fmt.Errorf("%w: negative persistence interval", ErrInvalidOptions)
	case o.SweepInterval < 0:
		return fmt.Errorf("%w: negative sweep interval", ErrInvalidOptions)
	}
	return nil
}

// effectiveStrategy resolves the strategy eviction actually runs.
func (o Options) effectiveStrategy() Strategy {
	switch o.RemovalStrategy {
	case StrategyLRU, StrategyLFU:
		if o.DisableAccessTracking {
			return StrategyFIFO
		}
		return o.RemovalStrategy
	default:
		return StrategyFIFO
	}
}

type addConfig struct {
	ttl int
}

// AddOption customizes a single Add call.
type AddOption func(*addConfig)

// WithTTL overrides the store's default TTL for one item. 0 means never expire.
func WithTTL(seconds int) AddOption {
	return func(c *addConfig) { c.ttl = seconds }
}

type searchConfig struct {
	limit     int
	threshold float64
	filter    Filter
}

// SearchOption customizes a single Search call.
type SearchOption func(*searchConfig)

// WithLimit caps the number of results. Non-positive values keep the default.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithThreshold sets the minimum similarity score.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) { c.threshold = t }
}

// WithFilter restricts the search to items the filter accepts.
func WithFilter(f Filter) SearchOption {
	return func(c *searchConfig) { c.filter = f }
}
