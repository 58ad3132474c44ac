package fingerprint

import (
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
)

const numPitchClasses = 12

// pitchClassMap assigns every FFT bin above DC to a pitch class relative to
// A440. Bin 0 maps to -1 and is ignored.
func pitchClassMap(fftSize, sampleRate int) []int {
	halfFFT := fftSize/2 + 1
	classes := make([]int, halfFFT)
	classes[0] = -1
	for k := 1; k < halfFFT; k++ {
		f := float64(k) * float64(sampleRate) / float64(fftSize)
		pc := int(math.Round(12*math.Log2(f/440))) % numPitchClasses
		if pc < 0 {
			pc += numPitchClasses
		}
		classes[k] = pc
	}
	return classes
}

// chromaFrame folds one magnitude frame into 12 pitch classes that sum to 1.
// A silent frame yields all zeros.
func chromaFrame(classes []int, mag []float64) []float64 {
	chroma := make([]float64, numPitchClasses)
	for k, pc := range classes {
		if pc >= 0 {
			chroma[pc] += mag[k]
		}
	}

	var total float64
	for _, c := range chroma {
		total += c
	}
	for i := range chroma {
		chroma[i] = dsp.SafeDiv(chroma[i], total+dsp.Eps)
	}
	return chroma
}
