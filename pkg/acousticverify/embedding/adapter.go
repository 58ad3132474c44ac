package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"gonum.org/v1/gonum/floats"
)

const DefaultModelSampleRate = 16000

// Adapter prepares segments for an Embedder and validates what comes back.
type Adapter struct {
	embedder        Embedder
	modelRate       int
	expectedSamples int
	policy          retry.Policy
}

// NewAdapter builds an adapter for segments of segmentDuration seconds. Input
// is resampled to modelRate and padded or trimmed to a full segment.
func NewAdapter(e Embedder, modelRate int, segmentDuration float64, policy retry.Policy) (*Adapter, error) {
	if e == nil {
		return nil, fmt.Errorf("embedding: nil embedder")
	}
	if modelRate <= 0 {
		return nil, fmt.Errorf("embedding: model sample rate must be positive, got %d", modelRate)
	}
	if segmentDuration <= 0 {
		return nil, fmt.Errorf("embedding: segment duration must be positive, got %v", segmentDuration)
	}
	if e.Dimension() <= 0 {
		return nil, fmt.Errorf("embedding: embedder reports dimension %d", e.Dimension())
	}
	return &Adapter{
		embedder:        e,
		modelRate:       modelRate,
		expectedSamples: int(math.Round(segmentDuration * float64(modelRate))),
		policy:          policy,
	}, nil
}

func (a *Adapter) Dimension() int { return a.embedder.Dimension() }

// Embed returns the unit-normalized embedding of seg. Transient model
// failures are retried under the adapter's policy; dimension mismatches,
// non-finite and zero vectors are not.
func (a *Adapter) Embed(ctx context.Context, seg models.Segment) ([]float64, error) {
	input, err := a.prepare(seg)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", seg.Index, err)
	}

	var vec []float64
	err = retry.Do(ctx, a.policy, func(ctx context.Context) error {
		raw, err := a.embedder.Embed(ctx, input, a.modelRate)
		if err != nil {
			return err
		}
		if len(raw) != a.embedder.Dimension() {
			return retry.Permanent(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(raw), a.embedder.Dimension()))
		}
		vec, err = Normalize(raw)
		if err != nil {
			return retry.Permanent(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", seg.Index, err)
	}
	return vec, nil
}

func (a *Adapter) prepare(seg models.Segment) ([]float64, error) {
	samples := seg.Samples
	if seg.SampleRate != a.modelRate {
		resampled, err := audio.Resample(seg.Samples, seg.SampleRate, a.modelRate)
		if err != nil {
			return nil, err
		}
		samples = resampled
	}
	return audio.FitLength(samples, a.expectedSamples), nil
}

// Normalize returns a unit-L2 copy of v.
func Normalize(v []float64) ([]float64, error) {
	if !dsp.AllFinite(v) {
		return nil, ErrNonFiniteVector
	}
	norm := floats.Norm(v, 2)
	if norm == 0 || !dsp.Finite(norm) {
		return nil, ErrZeroVector
	}
	out := make([]float64, len(v))
	copy(out, v)
	floats.Scale(1/norm, out)
	return out, nil
}
