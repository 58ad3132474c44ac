// Package segment splits audio buffers into fixed-duration windows.
package segment

import (
	"errors"
	"fmt"
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const (
	DefaultPerceptualDuration = 5.0
	DefaultEmbeddingDuration  = 10.0
	DefaultMinFillRatio       = 0.3
)

var ErrInvalidDuration = errors.New("segment: duration must be positive")

// Segmenter cuts non-overlapping windows of Duration seconds from time 0.
// A trailing window holding fewer than MinFillRatio x expected samples is dropped.
type Segmenter struct {
	Duration     float64
	MinFillRatio float64
}

func New(duration, minFillRatio float64) (Segmenter, error) {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return Segmenter{}, fmt.Errorf("%w: %v", ErrInvalidDuration, duration)
	}
	if minFillRatio < 0 || minFillRatio > 1 {
		return Segmenter{}, fmt.Errorf("segment: min fill ratio must be in [0,1], got %v", minFillRatio)
	}
	return Segmenter{Duration: duration, MinFillRatio: minFillRatio}, nil
}

// ExpectedSamples is the sample count of a full window at sampleRate.
func (s Segmenter) ExpectedSamples(sampleRate int) int {
	return int(math.Round(s.Duration * float64(sampleRate)))
}

// Split returns the ordered windows of buf. Index is the position in the
// returned slice. Segment samples alias buf.
func (s Segmenter) Split(buf models.AudioBuffer) []models.Segment {
	if buf.Empty() {
		return nil
	}
	expected := s.ExpectedSamples(buf.SampleRate)
	if expected <= 0 {
		return nil
	}
	minFill := s.MinFillRatio * float64(expected)

	var segments []models.Segment
	for start := 0; start < len(buf.Samples); start += expected {
		end := min(start+expected, len(buf.Samples))
		if end-start < expected && float64(end-start) < minFill {
			break
		}
		segments = append(segments, newSegment(len(segments), start, end, buf))
	}
	return segments
}

// Whole treats the entire buffer as a single segment with Index 0.
// An empty buffer yields false.
func Whole(buf models.AudioBuffer) (models.Segment, bool) {
	if buf.Empty() {
		return models.Segment{}, false
	}
	return newSegment(0, 0, len(buf.Samples), buf), true
}

func newSegment(index, start, end int, buf models.AudioBuffer) models.Segment {
	sr := float64(buf.SampleRate)
	return models.Segment{
		Index:       index,
		StartSample: start,
		EndSample:   end,
		StartTime:   float64(start) / sr,
		EndTime:     float64(end) / sr,
		SampleRate:  buf.SampleRate,
		Samples:     buf.Samples[start:end:end],
	}
}
