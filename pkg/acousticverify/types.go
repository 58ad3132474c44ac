package acousticverify

import "github.com/himanishpuri/AcousticVerify/pkg/models"

// FingerprintSet is the perceptual and exact-content description of a buffer.
type FingerprintSet struct {
	Whole    models.SegmentFingerprint   `json:"whole"`
	Segments []models.SegmentFingerprint `json:"segments"`
}

// Digests lists the per-segment content digests in segment order.
func (f FingerprintSet) Digests() []models.ContentDigest {
	out := make([]models.ContentDigest, len(f.Segments))
	for i, s := range f.Segments {
		out[i] = s.Digest
	}
	return out
}

type RegisterResult struct {
	FingerprintID          string                      `json:"fingerprint_id"`
	Label                  string                      `json:"label,omitempty"`
	PerceptualFingerprints []models.SegmentFingerprint `json:"perceptual_fingerprints"`
	Digests                []models.ContentDigest      `json:"digests"`
	WholeDigest            models.ContentDigest        `json:"whole_digest"`
	EmbeddedSegments       int                         `json:"embedded_segments"`
	EmbeddingSegments      int                         `json:"embedding_segments"`
	Replaced               bool                        `json:"replaced"`
}

type registerOptions struct {
	fingerprintID string
	label         string
}

type RegisterOption func(*registerOptions)

// WithFingerprintID registers under id instead of a fresh UUID. An existing
// registration with the same id is replaced.
func WithFingerprintID(id string) RegisterOption {
	return func(o *registerOptions) {
		o.fingerprintID = id
	}
}

func WithLabel(label string) RegisterOption {
	return func(o *registerOptions) {
		o.label = label
	}
}
