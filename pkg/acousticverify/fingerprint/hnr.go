package fingerprint

import (
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
)

// Harmonic ratio and envelope use a fixed analysis frame, independent of the
// spectrogram settings.
const (
	analysisFrame = 2048
	analysisHop   = 512
)

// harmonicRatio averages a per-frame autocorrelation peak ratio over
// analysis frames. Frames without a peak, or with a non-finite ratio, count as 0.
func harmonicRatio(samples []float64) float64 {
	frames := dsp.Frames(samples, analysisFrame, analysisHop)
	if len(frames) == 0 {
		return 0
	}

	var sum float64
	for _, frame := range frames {
		sum += frameHarmonicRatio(frame)
	}
	return dsp.Guard(sum / float64(len(frames)))
}

func frameHarmonicRatio(frame []float64) float64 {
	ac := dsp.Autocorrelation(frame)
	peaks := dsp.FindPeaks(ac)
	if len(peaks) == 0 {
		return 0
	}

	peak := ac[peaks[0]]
	for _, p := range peaks[1:] {
		peak = max(peak, ac[p])
	}
	mean := dsp.Mean(ac)
	ratio := peak / (math.Abs(mean-peak) + dsp.Eps)
	return dsp.Guard(math.Log10(math.Abs(ratio) + 1))
}
