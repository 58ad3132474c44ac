// Package fingerprint derives perceptual fingerprints and exact content
// digests from PCM segments.
package fingerprint

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

var (
	// ErrConfigMismatch is returned when fingerprints or samples produced
	// under different analysis settings are combined.
	ErrConfigMismatch = errors.New("fingerprint: feature configuration mismatch")
	ErrInvalidConfig  = errors.New("fingerprint: invalid feature configuration")
)

const (
	DefaultSampleRate = 22050
	DefaultNFFT       = 2048
	DefaultHopLength  = 512
	DefaultNMels      = 128
	DefaultNMFCC      = 13
	DefaultNBands     = 6
)

func DefaultConfig() models.FeatureConfig {
	return models.FeatureConfig{
		SampleRate: DefaultSampleRate,
		NFFT:       DefaultNFFT,
		HopLength:  DefaultHopLength,
		NMels:      DefaultNMels,
		NMFCC:      DefaultNMFCC,
		NBands:     DefaultNBands,
	}
}

// ValidateConfig checks that cfg can drive an Extractor.
func ValidateConfig(cfg models.FeatureConfig) error {
	var errs []error
	if cfg.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate))
	}
	if cfg.NFFT < 2 {
		errs = append(errs, fmt.Errorf("n_fft must be at least 2, got %d", cfg.NFFT))
	}
	if cfg.HopLength <= 0 {
		errs = append(errs, fmt.Errorf("hop length must be positive, got %d", cfg.HopLength))
	}
	if cfg.NMels <= 0 {
		errs = append(errs, fmt.Errorf("n_mels must be positive, got %d", cfg.NMels))
	}
	if cfg.NMFCC <= 0 || cfg.NMFCC > cfg.NMels {
		errs = append(errs, fmt.Errorf("n_mfcc must be in [1, n_mels], got %d", cfg.NMFCC))
	}
	if cfg.NBands <= 0 {
		errs = append(errs, fmt.Errorf("n_bands must be positive, got %d", cfg.NBands))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Features is the per-segment output of the spectral extractor. Per-frame
// series are indexed [frame][coefficient].
type Features struct {
	Spectrogram [][]float64
	MFCC        [][]float64
	Chroma      [][]float64
	Contrast    [][]float64
	Centroid    []float64
	Rolloff     []float64
	ZCR         float64
	Energy      float64
	Envelope    Envelope
	HNR         float64
}

// Extractor holds the precomputed window, filter bank, DCT basis and bin maps
// for one FeatureConfig. It is immutable and safe for concurrent use.
type Extractor struct {
	cfg      models.FeatureConfig
	window   []float64
	melBank  [][]float64
	dct      [][]float64
	pitch    []int
	contrast []bandRange
}

func NewExtractor(cfg models.FeatureConfig) (*Extractor, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Extractor{
		cfg:      cfg,
		window:   Hann(cfg.NFFT),
		melBank:  melFilterBank(cfg.NMels, cfg.NFFT, cfg.SampleRate),
		dct:      dctMatrix(cfg.NMFCC, cfg.NMels),
		pitch:    pitchClassMap(cfg.NFFT, cfg.SampleRate),
		contrast: contrastBands(cfg.NBands, cfg.NFFT, cfg.SampleRate),
	}, nil
}

func (e *Extractor) Config() models.FeatureConfig { return e.cfg }

// Extract analyses samples recorded at sampleRate, which must equal the
// extractor's configured rate. Numeric degeneracies (silence, empty input)
// never fail: they produce zero-valued statistics.
func (e *Extractor) Extract(samples []float64, sampleRate int) (Features, error) {
	if sampleRate != e.cfg.SampleRate {
		return Features{}, fmt.Errorf("%w: samples at %d Hz, extractor at %d Hz",
			ErrConfigMismatch, sampleRate, e.cfg.SampleRate)
	}
	if len(samples) == 0 {
		return Features{}, nil
	}

	spec := STFT(samples, e.cfg.NFFT, e.cfg.HopLength, e.window)
	f := Features{
		Spectrogram: spec,
		MFCC:        make([][]float64, len(spec)),
		Chroma:      make([][]float64, len(spec)),
		Contrast:    make([][]float64, len(spec)),
		Centroid:    make([]float64, len(spec)),
		Rolloff:     make([]float64, len(spec)),
	}
	for i, mag := range spec {
		f.MFCC[i] = mfccFrame(e.dct, applyFilterBank(e.melBank, mag))
		f.Chroma[i] = chromaFrame(e.pitch, mag)
		f.Contrast[i] = contrastFrame(e.contrast, e.cfg.NBands, mag)
		f.Centroid[i] = centroid(mag)
		f.Rolloff[i] = rolloff(mag)
	}

	f.ZCR = dsp.ZeroCrossingRate(samples)
	f.Energy = dsp.Energy(samples)
	f.Envelope = envelopeSummary(samples)
	f.HNR = harmonicRatio(samples)
	return f, nil
}

// Fingerprint extracts and assembles in one step.
func (e *Extractor) Fingerprint(samples []float64, sampleRate int) (models.PerceptualFingerprint, error) {
	f, err := e.Extract(samples, sampleRate)
	if err != nil {
		return models.PerceptualFingerprint{}, err
	}
	return Assemble(f, e.cfg), nil
}
