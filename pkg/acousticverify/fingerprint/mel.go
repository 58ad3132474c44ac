package fingerprint

import "math"

func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank builds numMels triangular filters spaced linearly on the mel
// scale over [0, sampleRate/2]. Returns [numMels][fftSize/2+1].
func melFilterBank(numMels, fftSize, sampleRate int) [][]float64 {
	halfFFT := fftSize/2 + 1
	highMel := hzToMel(float64(sampleRate) / 2)

	// numMels + 2 equally spaced mel points, mapped to the nearest FFT bin
	bins := make([]int, numMels+2)
	step := highMel / float64(numMels+1)
	for i := range bins {
		hz := melToHz(float64(i) * step)
		bin := int(math.Round(hz * float64(fftSize) / float64(sampleRate)))
		bins[i] = min(bin, halfFFT-1)
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, halfFFT)
		left, center, right := bins[m], bins[m+1], bins[m+2]

		for k := left; k < center; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right; k++ {
			if right == center {
				filter[k] = 1
				continue
			}
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}

// applyFilterBank projects one magnitude frame onto the filter bank.
func applyFilterBank(bank [][]float64, mag []float64) []float64 {
	out := make([]float64, len(bank))
	for m, filter := range bank {
		var sum float64
		for k, w := range filter {
			if w != 0 {
				sum += w * mag[k]
			}
		}
		out[m] = sum
	}
	return out
}
