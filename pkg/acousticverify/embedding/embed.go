// Package embedding adapts audio segments to an external embedding model and
// returns unit-length vectors.
package embedding

import (
	"context"
	"errors"
)

var (
	ErrDimensionMismatch = errors.New("embedding: vector dimension mismatch")
	ErrNonFiniteVector   = errors.New("embedding: vector contains NaN or Inf")
	ErrZeroVector        = errors.New("embedding: vector has zero norm")
	ErrRejected          = errors.New("embedding: request rejected by model service")
)

// Embedder is the external model: a fixed-dimension vector per audio clip.
// Implementations must be deterministic for identical input and safe for
// concurrent use.
type Embedder interface {
	Embed(ctx context.Context, samples []float64, sampleRate int) ([]float64, error)
	Dimension() int
}
