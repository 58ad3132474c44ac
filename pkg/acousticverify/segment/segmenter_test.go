package segment

import (
	"errors"
	"testing"

	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

func buffer(seconds float64, sampleRate int) models.AudioBuffer {
	return models.AudioBuffer{
		Samples:    make([]float64, int(seconds*float64(sampleRate))),
		SampleRate: sampleRate,
	}
}

func TestSplitMinFill(t *testing.T) {
	buf := buffer(23, 1000)
	tests := []struct {
		minFill float64
		want    int
	}{
		{0.3, 5},
		{0.6, 5},
		{0.7, 4},
		{0, 5},
		{1, 4},
	}
	for _, tt := range tests {
		s, err := New(5, tt.minFill)
		if err != nil {
			t.Fatal(err)
		}
		if got := len(s.Split(buf)); got != tt.want {
			t.Errorf("minFill %.1f: %d segments, want %d", tt.minFill, got, tt.want)
		}
	}
}

func TestSplitOrderAndBounds(t *testing.T) {
	s, _ := New(5, DefaultMinFillRatio)
	segs := s.Split(buffer(23, 1000))

	for i, seg := range segs {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.StartTime != float64(i*5) {
			t.Errorf("segment %d starts at %v", i, seg.StartTime)
		}
		if len(seg.Samples) != seg.EndSample-seg.StartSample {
			t.Errorf("segment %d sample count mismatch", i)
		}
		if i > 0 && segs[i-1].EndSample != seg.StartSample {
			t.Errorf("segments %d and %d are not contiguous", i-1, i)
		}
	}
	last := segs[len(segs)-1]
	if last.EndTime != 23 || len(last.Samples) != 3000 {
		t.Errorf("last segment = [%v,%v) with %d samples", last.StartTime, last.EndTime, len(last.Samples))
	}
}

func TestSplitExactMultiple(t *testing.T) {
	s, _ := New(5, DefaultMinFillRatio)
	if got := len(s.Split(buffer(20, 1000))); got != 4 {
		t.Errorf("20s buffer: %d segments, want 4", got)
	}
}

func TestSplitShortBuffer(t *testing.T) {
	s, _ := New(10, DefaultMinFillRatio)
	if got := len(s.Split(buffer(2, 1000))); got != 0 {
		t.Errorf("2s of 10s window: %d segments, want 0", got)
	}
	if got := len(s.Split(buffer(4, 1000))); got != 1 {
		t.Errorf("4s of 10s window: %d segments, want 1", got)
	}
}

func TestSplitEmpty(t *testing.T) {
	s, _ := New(5, DefaultMinFillRatio)
	if segs := s.Split(models.AudioBuffer{SampleRate: 1000}); segs != nil {
		t.Errorf("empty buffer produced %d segments", len(segs))
	}
}

func TestWhole(t *testing.T) {
	seg, ok := Whole(buffer(23, 1000))
	if !ok {
		t.Fatal("Whole returned false")
	}
	if seg.StartTime != 0 || seg.EndTime != 23 || len(seg.Samples) != 23000 {
		t.Errorf("unexpected whole segment %+v", seg)
	}
	if _, ok := Whole(models.AudioBuffer{}); ok {
		t.Error("Whole on empty buffer should return false")
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := New(0, 0.3); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("err = %v, want ErrInvalidDuration", err)
	}
	if _, err := New(5, 1.5); err == nil {
		t.Error("expected error for min fill > 1")
	}
}
