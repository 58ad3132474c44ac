package fingerprint

import (
	"fmt"

	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// Similarity returns the cosine similarity of two perceptual fingerprints.
// Fingerprints produced under different configurations are rejected with
// ErrConfigMismatch rather than scored. A zero vector scores 0.
func Similarity(a, b models.PerceptualFingerprint) (float64, error) {
	if a.Config != b.Config {
		return 0, fmt.Errorf("%w: %+v vs %+v", ErrConfigMismatch, a.Config, b.Config)
	}
	if len(a.Values) != len(b.Values) {
		return 0, fmt.Errorf("%w: vector length %d vs %d", ErrConfigMismatch, len(a.Values), len(b.Values))
	}
	if len(a.Values) == 0 {
		return 0, nil
	}

	na, nb := floats.Norm(a.Values, 2), floats.Norm(b.Values, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return floats.Dot(a.Values, b.Values) / (na * nb), nil
}
