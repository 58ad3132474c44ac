package acousticverify

import (
	"runtime"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/similarity"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const (
	DefaultMatchedPercent = 70.0
	DefaultPartialPercent = 30.0
	DefaultEmbedTimeout   = 30 * time.Second
	DefaultStoreTimeout   = 5 * time.Second
)

// Policy holds the verification decision thresholds. The percentage cut-offs
// are empirical defaults, not calibrated values.
type Policy struct {
	TopK                int
	SimilarityThreshold float64
	MatchedPercent      float64
	PartialPercent      float64
}

func DefaultPolicy() Policy {
	return Policy{
		TopK:                similarity.DefaultTopK,
		SimilarityThreshold: similarity.DefaultThreshold,
		MatchedPercent:      DefaultMatchedPercent,
		PartialPercent:      DefaultPartialPercent,
	}
}

type Config struct {
	DBPath        string
	StorageDriver string
	Storage       Storage
	Logger        Logger

	Embedder            embedding.Embedder
	EmbeddingSampleRate int

	Features           models.FeatureConfig
	PerceptualDuration float64
	EmbeddingDuration  float64
	MinFillRatio       float64

	Policy      Policy
	EmbedRetry  retry.Policy
	StoreRetry  retry.Policy
	Concurrency int
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

// WithStorageDriver selects the backend opened when no Storage is supplied:
// "sqlite" (default), "badger" or "memory".
func WithStorageDriver(driver string) Option {
	return func(c *Config) {
		c.StorageDriver = driver
	}
}

func WithStorage(s Storage) Option {
	return func(c *Config) {
		c.Storage = s
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithEmbedder(e embedding.Embedder) Option {
	return func(c *Config) {
		c.Embedder = e
	}
}

func WithEmbeddingSampleRate(rate int) Option {
	return func(c *Config) {
		c.EmbeddingSampleRate = rate
	}
}

func WithFeatureConfig(fc models.FeatureConfig) Option {
	return func(c *Config) {
		c.Features = fc
	}
}

// WithSegmentDurations sets the perceptual and embedding window lengths in seconds.
func WithSegmentDurations(perceptual, embedding float64) Option {
	return func(c *Config) {
		c.PerceptualDuration = perceptual
		c.EmbeddingDuration = embedding
	}
}

func WithMinFillRatio(ratio float64) Option {
	return func(c *Config) {
		c.MinFillRatio = ratio
	}
}

func WithPolicy(p Policy) Option {
	return func(c *Config) {
		c.Policy = p
	}
}

func WithRetry(embed, store retry.Policy) Option {
	return func(c *Config) {
		c.EmbedRetry = embed
		c.StoreRetry = store
	}
}

func WithConcurrency(n int) Option {
	return func(c *Config) {
		c.Concurrency = n
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:              storage.DefaultDBFile,
		StorageDriver:       storage.DriverSQLite,
		EmbeddingSampleRate: embedding.DefaultModelSampleRate,
		Features:            fingerprint.DefaultConfig(),
		PerceptualDuration:  segment.DefaultPerceptualDuration,
		EmbeddingDuration:   segment.DefaultEmbeddingDuration,
		MinFillRatio:        segment.DefaultMinFillRatio,
		Policy:              DefaultPolicy(),
		EmbedRetry:          retry.DefaultPolicy(DefaultEmbedTimeout),
		StoreRetry:          retry.DefaultPolicy(DefaultStoreTimeout),
		Concurrency:         runtime.NumCPU(),
	}
}
