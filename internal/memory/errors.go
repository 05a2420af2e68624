package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingFailed matches any *EmbeddingError.
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidTTL        = errors.New("invalid ttl")
	ErrInvalidMetadata   = errors.New("invalid metadata")
	ErrInvalidOptions    = errors.New("invalid options")
)

// EmbeddingError reports an embedder failure during Add or Search.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s: embedding failed: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Is reports ErrEmbeddingFailed as a match.
func (e *EmbeddingError) Is(target error) bool {
	return target == ErrEmbeddingFailed
}

func dimensionError(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}
