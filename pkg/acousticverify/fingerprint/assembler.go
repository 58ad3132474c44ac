package fingerprint

import (
	"math"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// VectorLength is the assembled fingerprint length for cfg.
func VectorLength(cfg models.FeatureConfig) int {
	return cfg.NMFCC*3 + numPitchClasses*2 + 4 + cfg.NBands*2 + 2 + 4 + 1
}

// Assemble concatenates segment statistics in this fixed order:
//
//	mfcc mean | mfcc std | mfcc delta | chroma mean | chroma std |
//	centroid mean, std | rolloff mean, std | contrast mean | contrast std |
//	zcr | energy | envelope mean, std, max, attack | hnr
//
// and scales the result by 1/(max|v| + eps) so every value lies in [-1, 1].
func Assemble(f Features, cfg models.FeatureConfig) models.PerceptualFingerprint {
	v := make([]float64, 0, VectorLength(cfg))

	mfccMean, mfccStd := columnStats(f.MFCC, cfg.NMFCC)
	v = append(v, mfccMean...)
	v = append(v, mfccStd...)
	v = append(v, columnDelta(f.MFCC, cfg.NMFCC)...)

	chromaMean, chromaStd := columnStats(f.Chroma, numPitchClasses)
	v = append(v, chromaMean...)
	v = append(v, chromaStd...)

	cMean, cStd := dsp.MeanStd(f.Centroid)
	rMean, rStd := dsp.MeanStd(f.Rolloff)
	v = append(v, cMean, cStd, rMean, rStd)

	contrastMean, contrastStd := columnStats(f.Contrast, cfg.NBands)
	v = append(v, contrastMean...)
	v = append(v, contrastStd...)

	v = append(v, f.ZCR, f.Energy)
	v = append(v, f.Envelope.Mean, f.Envelope.Std, f.Envelope.Max, f.Envelope.AttackRate)
	v = append(v, f.HNR)

	return models.PerceptualFingerprint{Values: normalizeMaxAbs(v), Config: cfg}
}

// columnStats returns per-column population mean and std of a [frame][col]
// matrix with the given column count.
func columnStats(m [][]float64, cols int) (mean, std []float64) {
	mean = make([]float64, cols)
	std = make([]float64, cols)
	if len(m) == 0 {
		return mean, std
	}

	col := make([]float64, len(m))
	for c := 0; c < cols; c++ {
		for r, row := range m {
			col[r] = row[c]
		}
		mean[c], std[c] = dsp.MeanStd(col)
	}
	return mean, std
}

// columnDelta is the mean first-order frame difference per column.
func columnDelta(m [][]float64, cols int) []float64 {
	delta := make([]float64, cols)
	if len(m) < 2 {
		return delta
	}
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 1; r < len(m); r++ {
			sum += m[r][c] - m[r-1][c]
		}
		delta[c] = dsp.Guard(sum / float64(len(m)-1))
	}
	return delta
}

func normalizeMaxAbs(v []float64) []float64 {
	dsp.Sanitize(v)
	var peak float64
	for _, x := range v {
		peak = math.Max(peak, math.Abs(x))
	}
	scale := peak + dsp.Eps
	for i := range v {
		v[i] = dsp.Guard(v[i] / scale)
	}
	return v
}
