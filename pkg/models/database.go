package models

// EmbeddingRecord is one write-once row of the similarity store.
// Vector is unit-normalized; (FingerprintID, SegmentIndex) is unique.
type EmbeddingRecord struct {
	FingerprintID string    `json:"fingerprint_id" msgpack:"fingerprint_id"`
	SegmentIndex  int       `json:"segment_index" msgpack:"segment_index"`
	StartTime     float64   `json:"start_time" msgpack:"start_time"`
	EndTime       float64   `json:"end_time" msgpack:"end_time"`
	Vector        []float64 `json:"vector" msgpack:"vector"`
}

// SearchHit is a raw nearest-neighbor result as returned by a store.
// Distance is the L2 distance to the query; stores never report similarity.
type SearchHit struct {
	FingerprintID string
	SegmentIndex  int
	StartTime     float64
	EndTime       float64
	Distance      float64
}

// Neighbor is a SearchHit annotated with its similarity score.
type Neighbor struct {
	FingerprintID string  `json:"fingerprint_id"`
	SegmentIndex  int     `json:"segment_index"`
	StartTime     float64 `json:"start_time"`
	EndTime       float64 `json:"end_time"`
	Distance      float64 `json:"distance"`
	Similarity    float64 `json:"similarity"`
}
