package fingerprint

import (
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
)

// dctMatrix returns the first nCoeffs rows of the orthonormal DCT-II basis of size n.
func dctMatrix(nCoeffs, n int) [][]float64 {
	basis := make([][]float64, nCoeffs)
	for k := 0; k < nCoeffs; k++ {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		row := make([]float64, n)
		for i := 0; i < n; i++ {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		basis[k] = row
	}
	return basis
}

// mfccFrame computes cepstral coefficients from one frame of mel energies.
func mfccFrame(dct [][]float64, melEnergies []float64) []float64 {
	logMel := make([]float64, len(melEnergies))
	for i, e := range melEnergies {
		logMel[i] = dsp.SafeLog(e)
	}

	coeffs := make([]float64, len(dct))
	for k, row := range dct {
		var sum float64
		for i, w := range row {
			sum += w * logMel[i]
		}
		coeffs[k] = dsp.Guard(sum)
	}
	return coeffs
}
