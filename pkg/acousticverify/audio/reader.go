// Package audio decodes and encodes the PCM buffers the engine consumes.
// Decoding of arbitrary formats is delegated to ffmpeg; WAV is handled natively.
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

var ErrNotWAV = errors.New("audio: not a valid WAV file")

// ReadWAV decodes a PCM WAV file into a mono buffer normalized to [-1, 1].
func ReadWAV(path string) (models.AudioBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV decodes PCM WAV data. Multi-channel input is averaged to mono.
func DecodeWAV(r io.ReadSeeker) (models.AudioBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return models.AudioBuffer{}, ErrNotWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		return models.AudioBuffer{}, fmt.Errorf("%w: %d channels", ErrNotWAV, channels)
	}
	bitDepth := int(dec.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return models.AudioBuffer{}, fmt.Errorf("%w: unsupported bit depth %d", ErrNotWAV, bitDepth)
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = clamp(sum / float64(channels) / scale)
	}

	return models.AudioBuffer{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

func clamp(x float64) float64 {
	return max(-1, min(1, x))
}
