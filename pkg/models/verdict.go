package models

// VerdictStatus is the single classification of a verification call.
type VerdictStatus string

const (
	StatusMatched          VerdictStatus = "matched"
	StatusPartial          VerdictStatus = "partial"
	StatusTampered         VerdictStatus = "tampered"
	StatusInconclusive     VerdictStatus = "inconclusive"
	StatusStoreUnavailable VerdictStatus = "store_unavailable"
)

// SegmentMatch reports how one query segment fared against the target.
type SegmentMatch struct {
	SegmentIndex int        `json:"segment_index"`
	StartTime    float64    `json:"start_time"`
	EndTime      float64    `json:"end_time"`
	Matched      bool       `json:"matched"`
	Similarity   float64    `json:"similarity"`    // best similarity to the target, 0 if none
	TargetIndex  int        `json:"target_index"`  // matched segment of the target, -1 if none
	Neighbors    []Neighbor `json:"neighbors"`
}

// VerificationVerdict is derived per call and never persisted as authoritative state.
type VerificationVerdict struct {
	FingerprintID     string         `json:"fingerprint_id"`
	Status            VerdictStatus  `json:"status"`
	Matched           bool           `json:"matched"`
	MatchPercentage   float64        `json:"match_percentage"`
	MatchedSegments   int            `json:"matched_segments"`
	TotalSegments     int            `json:"total_segments"`
	PerSegmentMatches []SegmentMatch `json:"per_segment_matches"`
	IsPartialMatch    bool           `json:"is_partial_match"`
	IsTampered        bool           `json:"is_tampered"`

	// IsExactMatch is set when the whole-file SHA-256 equals the registered one.
	IsExactMatch bool `json:"is_exact_match"`
	// PerceptualSimilarity is the cosine similarity of whole-file perceptual
	// fingerprints; nil when unavailable or produced under different configs.
	PerceptualSimilarity *float64 `json:"perceptual_similarity,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// Inconclusive reports whether the verdict carries no content decision.
func (v VerificationVerdict) Inconclusive() bool {
	return v.Status == StatusInconclusive || v.Status == StatusStoreUnavailable
}
