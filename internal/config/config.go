package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "ACOUSTIC_CONFIG"

// Storage selects and locates the registration and embedding store.
type Storage struct {
	Driver string `toml:"driver"` // sqlite, badger or memory
	Path   string `toml:"path"`
}

// Embedding configures the model that turns segments into vectors.
type Embedding struct {
	Provider       string `toml:"provider"` // http or hash
	URL            string `toml:"url"`
	Dimension      int    `toml:"dimension"`
	SampleRate     int    `toml:"sample_rate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Features are the perceptual fingerprint analysis parameters. Fingerprints
// made with different values are not comparable.
type Features struct {
	SampleRate int `toml:"sample_rate"`
	NFFT       int `toml:"n_fft"`
	HopLength  int `toml:"hop_length"`
	NMels      int `toml:"n_mels"`
	NMFCC      int `toml:"n_mfcc"`
	NBands     int `toml:"n_bands"`
}

// Verification holds segmentation and decision thresholds.
type Verification struct {
	PerceptualDuration  float64 `toml:"perceptual_duration"`
	EmbeddingDuration   float64 `toml:"embedding_duration"`
	MinFillRatio        float64 `toml:"min_fill_ratio"`
	TopK                int     `toml:"top_k"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MatchedPercent      float64 `toml:"matched_percent"`
	PartialPercent      float64 `toml:"partial_percent"`
	Concurrency         int     `toml:"concurrency"` // 0 means one worker per CPU
}

// Retry bounds calls to the embedding model and the store.
type Retry struct {
	Attempts            int `toml:"attempts"`
	BaseDelayMs         int `toml:"base_delay_ms"`
	MaxDelayMs          int `toml:"max_delay_ms"`
	StoreTimeoutSeconds int `toml:"store_timeout_seconds"`
}

type Logging struct {
	Level string `toml:"level"`
}

// Config is the complete operator configuration.
type Config struct {
	Storage      Storage      `toml:"storage"`
	Embedding    Embedding    `toml:"embedding"`
	Features     Features     `toml:"features"`
	Verification Verification `toml:"verification"`
	Retry        Retry        `toml:"retry"`
	Logging      Logging      `toml:"logging"`
}

// Load reads the file at path, falling back to $ACOUSTIC_CONFIG. With
// neither set, or when the resolved file does not exist, defaults are used.
// It returns the config, the resolved path and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if path == "" {
		return "", false, nil
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// SampleConfig returns a commented configuration file with every default.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path. An existing file is
// left alone and reported as an error.
func CreateSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(expanded); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	f, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create config: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(sampleConfig); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ExpandPath resolves a leading ~ and makes the path absolute.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
