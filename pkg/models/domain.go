package models

import "time"

// AudioBuffer is a mono PCM stream normalized to [-1,1].
// Callers must not mutate Samples while an engine call is using the buffer.
type AudioBuffer struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the buffer length in seconds.
func (b AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Empty reports whether the buffer holds no usable audio.
func (b AudioBuffer) Empty() bool {
	return len(b.Samples) == 0 || b.SampleRate <= 0
}

// Segment is a contiguous window [StartTime, EndTime) of an AudioBuffer.
// Samples aliases the parent buffer and is read-only.
type Segment struct {
	Index       int
	StartSample int
	EndSample   int
	StartTime   float64 // seconds
	EndTime     float64 // seconds
	SampleRate  int
	Samples     []float64
}

// FeatureConfig identifies the analysis parameters a PerceptualFingerprint was
// produced with. Fingerprints are comparable only when their configs are equal.
type FeatureConfig struct {
	SampleRate int `json:"sample_rate" msgpack:"sample_rate"`
	NFFT       int `json:"n_fft" msgpack:"n_fft"`
	HopLength  int `json:"hop_length" msgpack:"hop_length"`
	NMels      int `json:"n_mels" msgpack:"n_mels"`
	NMFCC      int `json:"n_mfcc" msgpack:"n_mfcc"`
	NBands     int `json:"n_bands" msgpack:"n_bands"`
}

// PerceptualFingerprint is the max-abs normalized feature vector of one segment.
type PerceptualFingerprint struct {
	Values []float64     `json:"values" msgpack:"values"`
	Config FeatureConfig `json:"config" msgpack:"config"`
}

// ContentDigest holds hex digests of a segment's exact sample bytes.
type ContentDigest struct {
	SHA256   string `json:"sha256" msgpack:"sha256"`
	XXHash64 string `json:"xxhash64" msgpack:"xxhash64"`
}

// SegmentFingerprint ties a perceptual fingerprint and digest to a segment window.
type SegmentFingerprint struct {
	SegmentIndex int                   `json:"segment_index" msgpack:"segment_index"`
	StartTime    float64               `json:"start_time" msgpack:"start_time"`
	EndTime      float64               `json:"end_time" msgpack:"end_time"`
	Fingerprint  PerceptualFingerprint `json:"fingerprint" msgpack:"fingerprint"`
	Digest       ContentDigest         `json:"digest" msgpack:"digest"`
}

// Registration is the persisted description of one registered recording.
type Registration struct {
	FingerprintID    string               `json:"fingerprint_id" msgpack:"fingerprint_id"`
	Label            string               `json:"label" msgpack:"label"`
	DurationMs       int                  `json:"duration_ms" msgpack:"duration_ms"`
	SampleRate       int                  `json:"sample_rate" msgpack:"sample_rate"`
	WholeDigest      ContentDigest        `json:"whole_digest" msgpack:"whole_digest"`
	WholeFingerprint SegmentFingerprint   `json:"whole_fingerprint" msgpack:"whole_fingerprint"`
	Segments         []SegmentFingerprint `json:"segments" msgpack:"segments"`
	EmbeddedSegments int                  `json:"embedded_segments" msgpack:"embedded_segments"`
	CreatedAt        time.Time            `json:"created_at" msgpack:"created_at"`
}
