package embedding

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/OneOfOne/xxhash"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
)

// HashEmbedder is an offline stand-in for a model service. It seeds a
// Gaussian vector from the xxHash of the exact input bytes, so identical clips
// embed identically and any other clip lands at an unrelated random point.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Embed(ctx context.Context, samples []float64, sampleRate int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("embedding: empty input")
	}

	seed := xxhash.Checksum64(fingerprint.SampleBytes(samples))
	rng := rand.New(rand.NewPCG(seed, uint64(sampleRate)))
	v := make([]float64, h.dim)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v, nil
}
