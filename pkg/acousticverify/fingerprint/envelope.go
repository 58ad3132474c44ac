package fingerprint

import "github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"

// Envelope summarizes the frame RMS curve of a segment.
type Envelope struct {
	Mean       float64
	Std        float64
	Max        float64
	AttackRate float64
}

func envelopeSummary(samples []float64) Envelope {
	frames := dsp.Frames(samples, analysisFrame, analysisHop)
	if len(frames) == 0 {
		return Envelope{}
	}

	rms := make([]float64, len(frames))
	for i, frame := range frames {
		rms[i] = dsp.RMS(frame)
	}

	mean, std := dsp.MeanStd(rms)
	return Envelope{
		Mean:       mean,
		Std:        std,
		Max:        dsp.Guard(dsp.Max(rms)),
		AttackRate: attackRate(rms, mean),
	}
}

// attackRate is the mean successive difference of the envelope values above
// the envelope mean, or 0 when fewer than two values qualify.
func attackRate(rms []float64, mean float64) float64 {
	var above []float64
	for _, v := range rms {
		if v > mean {
			above = append(above, v)
		}
	}
	if len(above) < 2 {
		return 0
	}

	var sum float64
	for i := 1; i < len(above); i++ {
		sum += above[i] - above[i-1]
	}
	return dsp.Guard(sum / float64(len(above)-1))
}
