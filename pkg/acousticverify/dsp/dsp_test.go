package dsp

import (
	"math"
	"testing"
)

func TestSafeDivAndLog(t *testing.T) {
	if got := SafeDiv(1, 0); got != 0 {
		t.Errorf("SafeDiv(1,0) = %v, want 0", got)
	}
	if got := SafeDiv(math.Inf(1), 2); got != 0 {
		t.Errorf("SafeDiv(Inf,2) = %v, want 0", got)
	}
	if got := SafeDiv(6, 3); got != 2 {
		t.Errorf("SafeDiv(6,3) = %v, want 2", got)
	}
	if got, want := SafeLog(0), math.Log(Eps); got != want {
		t.Errorf("SafeLog(0) = %v, want %v", got, want)
	}
	if got := SafeLog(math.NaN()); !Finite(got) {
		t.Errorf("SafeLog(NaN) = %v, want finite", got)
	}
	if got := SafeLog10(100); math.Abs(got-2) > 1e-12 {
		t.Errorf("SafeLog10(100) = %v, want 2", got)
	}
}

func TestSanitize(t *testing.T) {
	v := Sanitize([]float64{1, math.NaN(), math.Inf(-1), -2})
	want := []float64{1, 0, 0, -2}
	for i := range want {
		if v[i] != want[i] {
			t.Fatalf("Sanitize = %v, want %v", v, want)
		}
	}
	if !AllFinite(v) {
		t.Error("AllFinite after Sanitize = false")
	}
}

func TestPercentileLinear(t *testing.T) {
	x := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{10, 1.4},
		{50, 3},
		{90, 4.6},
		{100, 5},
	}
	for _, tt := range tests {
		if got := Percentile(x, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if x[0] != 4 {
		t.Error("Percentile modified its input")
	}
	if Percentile(nil, 50) != 0 {
		t.Error("Percentile(nil) should be 0")
	}
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 || math.Abs(std-2) > 1e-12 {
		t.Errorf("MeanStd = %v,%v want 5,2", mean, std)
	}
	if m, s := MeanStd(nil); m != 0 || s != 0 {
		t.Errorf("MeanStd(nil) = %v,%v", m, s)
	}
}

func TestAutocorrelationMatchesDirect(t *testing.T) {
	x := []float64{1, -2, 3, 0.5, -1, 2, 0, 1.5}
	got := Autocorrelation(x)
	if len(got) != len(x) {
		t.Fatalf("len = %d, want %d", len(got), len(x))
	}
	for k := range x {
		var sum float64
		for i := 0; i+k < len(x); i++ {
			sum += x[i] * x[i+k]
		}
		want := sum / float64(len(x))
		if math.Abs(got[k]-want) > 1e-9 {
			t.Errorf("lag %d: got %v want %v", k, got[k], want)
		}
	}
}

func TestFindPeaks(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []int
	}{
		{"simple", []float64{0, 1, 0, 2, 0}, []int{1, 3}},
		{"plateau", []float64{0, 2, 2, 2, 0}, []int{2}},
		{"edges ignored", []float64{3, 1, 1, 3}, nil},
		{"monotonic", []float64{1, 2, 3, 4}, nil},
		{"short", []float64{1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindPeaks(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("FindPeaks = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("FindPeaks = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFrames(t *testing.T) {
	x := make([]float64, 10)
	if got := len(Frames(x, 4, 2)); got != 4 {
		t.Errorf("Frames(10,4,2) = %d frames, want 4", got)
	}
	short := Frames([]float64{1, 2}, 4, 2)
	if len(short) != 1 || len(short[0]) != 4 || short[0][1] != 2 || short[0][3] != 0 {
		t.Errorf("short input frame = %v", short)
	}
	if Frames(nil, 4, 2) != nil {
		t.Error("Frames(nil) should be nil")
	}
}

func TestRMSAndZCR(t *testing.T) {
	if got := RMS([]float64{1, -1, 1, -1}); got != 1 {
		t.Errorf("RMS = %v, want 1", got)
	}
	if got := ZeroCrossingRate([]float64{1, -1, 1, -1}); got != 1 {
		t.Errorf("ZCR = %v, want 1", got)
	}
	if got := ZeroCrossingRate([]float64{1, 1, 1}); got != 0 {
		t.Errorf("ZCR constant = %v, want 0", got)
	}
	if got := Energy([]float64{2, 2}); got != 4 {
		t.Errorf("Energy = %v, want 4", got)
	}
}
