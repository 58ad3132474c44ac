package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"github.com/himanishpuri/AcousticVerify/pkg/utils"
)

const (
	DefaultSampleRate     = 22050
	defaultConvertTimeout = 60 * time.Second
)

type ConvertWAVConfig struct {
	SampleRate int
}

// ConvertToMonoWAV transcodes any ffmpeg-readable input into a mono 16-bit
// WAV at cfg.SampleRate inside outputDir and returns the new path.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConvertTimeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// Load returns the file at path as a mono buffer at sampleRate. WAV input is
// decoded natively and resampled when needed; anything else goes through ffmpeg.
func Load(ctx context.Context, path string, sampleRate int) (models.AudioBuffer, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	buf, err := ReadWAV(path)
	switch {
	case err == nil:
		if buf.SampleRate == sampleRate {
			return buf, nil
		}
		samples, err := Resample(buf.Samples, buf.SampleRate, sampleRate)
		if err != nil {
			return models.AudioBuffer{}, err
		}
		return models.AudioBuffer{Samples: samples, SampleRate: sampleRate}, nil
	case !errors.Is(err, ErrNotWAV):
		return models.AudioBuffer{}, err
	}

	tmpDir, err := os.MkdirTemp("", "acousticverify-*")
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	wavPath, err := ConvertToMonoWAV(ctx, path, tmpDir, ConvertWAVConfig{SampleRate: sampleRate})
	if err != nil {
		return models.AudioBuffer{}, fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}
	return ReadWAV(wavPath)
}
