package fingerprint

import (
	"math"
	"math/cmplx"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
	"github.com/mjibson/go-dsp/fft"
)

// Hann returns a periodic Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// MagnitudeSpectrum keeps the non-negative frequency half of an FFT,
// including the Nyquist bin: len(spectrum)/2 + 1 magnitudes.
func MagnitudeSpectrum(spectrum []complex128) []float64 {
	half := len(spectrum)/2 + 1
	mag := make([]float64, half)
	for i := 0; i < half && i < len(spectrum); i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// STFT returns the magnitude spectrogram [frame][bin] of samples. Frames are
// windowSize long every hopSize samples, starting at sample 0; input shorter
// than one window is zero-padded to a single frame.
func STFT(samples []float64, windowSize, hopSize int, window []float64) [][]float64 {
	frames := dsp.Frames(samples, windowSize, hopSize)
	spectrogram := make([][]float64, len(frames))

	buf := make([]float64, windowSize)
	for f, frame := range frames {
		for i := 0; i < windowSize; i++ {
			buf[i] = frame[i] * window[i]
		}
		spectrogram[f] = MagnitudeSpectrum(fft.FFTReal(buf))
	}
	return spectrogram
}
