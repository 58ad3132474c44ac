package dsp

import (
	"math"
	"slices"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the population mean and standard deviation of x.
// Empty or non-finite results come back as 0.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	mean, std = stat.PopMeanStdDev(x, nil)
	return Guard(mean), Guard(std)
}

func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return Guard(stat.Mean(x, nil))
}

func Max(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return slices.Max(x)
}

// Percentile returns the p-th percentile (0..100) of x using linear
// interpolation between closest ranks. x is not modified.
func Percentile(x []float64, p float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	if n == 1 {
		return sorted[0]
	}

	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Autocorrelation returns the biased autocorrelation of x for lags 0..len(x)-1:
// r[k] = sum(x[i]*x[i+k]) / len(x). It is computed with a zero-padded FFT.
func Autocorrelation(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	size := 1
	for size < 2*n {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, x)

	spec := fft.FFTReal(padded)
	for i, c := range spec {
		spec[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	inv := fft.IFFT(spec)

	r := make([]float64, n)
	for k := 0; k < n; k++ {
		r[k] = Guard(real(inv[k]) / float64(n))
	}
	return r
}

// FindPeaks returns the indices of local maxima of x. A flat top counts once,
// at its middle sample. The first and last samples are never peaks.
func FindPeaks(x []float64) []int {
	var peaks []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			j := i + 1
			for j < n-1 && x[j] == x[i] {
				j++
			}
			if x[j] < x[i] {
				peaks = append(peaks, (i+j-1)/2)
				i = j
				continue
			}
		}
		i++
	}
	return peaks
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return Guard(math.Sqrt(sum / float64(len(x))))
}

// Energy returns the mean squared amplitude of x.
func Energy(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return Guard(sum / float64(len(x)))
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs differ.
func ZeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if math.Signbit(x[i]) != math.Signbit(x[i-1]) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

// Frames slices x into windows of size samples every hop samples. Frames are
// not centered: the first starts at 0 and only full frames are returned, except
// that input shorter than one frame yields a single zero-padded frame.
// Full frames alias x.
func Frames(x []float64, size, hop int) [][]float64 {
	if size <= 0 || hop <= 0 || len(x) == 0 {
		return nil
	}
	if len(x) < size {
		frame := make([]float64, size)
		copy(frame, x)
		return [][]float64{frame}
	}
	count := 1 + (len(x)-size)/hop
	frames := make([][]float64, count)
	for i := range frames {
		start := i * hop
		frames[i] = x[start : start+size : start+size]
	}
	return frames
}

