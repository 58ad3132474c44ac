package fingerprint

import (
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
)

const (
	rolloffPercent  = 0.85
	contrastLowHz   = 200.0
	contrastLowPct  = 10.0
	contrastHighPct = 90.0
)

// centroid is the magnitude-weighted mean bin index of a frame.
func centroid(mag []float64) float64 {
	var weighted, total float64
	for k, m := range mag {
		weighted += float64(k) * m
		total += m
	}
	return dsp.SafeDiv(weighted, total)
}

// rolloff is the smallest bin index at which the cumulative magnitude
// reaches rolloffPercent of the frame total. Silent frames return 0.
func rolloff(mag []float64) float64 {
	var total float64
	for _, m := range mag {
		total += m
	}
	if total <= 0 {
		return 0
	}

	target := rolloffPercent * total
	var cum float64
	for k, m := range mag {
		cum += m
		if cum >= target {
			return float64(k)
		}
	}
	return float64(len(mag) - 1)
}

// bandRange is a half-open range of FFT bins.
type bandRange struct{ lo, hi int }

// contrastBands splits [200 Hz, Nyquist] into nBands log-spaced bin ranges.
// Every band holds at least one bin. When Nyquist is at or below 200 Hz there
// is nothing to split and nil is returned.
func contrastBands(nBands, fftSize, sampleRate int) []bandRange {
	nyquist := float64(sampleRate) / 2
	if nyquist <= contrastLowHz || nBands <= 0 {
		return nil
	}

	halfFFT := fftSize/2 + 1
	binHz := float64(sampleRate) / float64(fftSize)
	toBin := func(hz float64) int {
		return min(int(math.Round(hz/binHz)), halfFFT-1)
	}

	ratio := nyquist / contrastLowHz
	bands := make([]bandRange, nBands)
	for b := 0; b < nBands; b++ {
		loHz := contrastLowHz * math.Pow(ratio, float64(b)/float64(nBands))
		hiHz := contrastLowHz * math.Pow(ratio, float64(b+1)/float64(nBands))
		lo, hi := toBin(loHz), toBin(hiHz)
		if b == nBands-1 {
			hi = halfFFT
		}
		if hi <= lo {
			hi = min(lo+1, halfFFT)
			lo = hi - 1
		}
		bands[b] = bandRange{lo: lo, hi: hi}
	}
	return bands
}

// contrastFrame is the p90 - p10 magnitude spread inside each band.
func contrastFrame(bands []bandRange, nBands int, mag []float64) []float64 {
	out := make([]float64, nBands)
	for b, r := range bands {
		vals := mag[r.lo:r.hi]
		out[b] = dsp.Guard(dsp.Percentile(vals, contrastHighPct) - dsp.Percentile(vals, contrastLowPct))
	}
	return out
}
