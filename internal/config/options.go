package config

import (
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

func (c *Config) FeatureConfig() models.FeatureConfig {
	f := c.Features
	return models.FeatureConfig{
		SampleRate: f.SampleRate,
		NFFT:       f.NFFT,
		HopLength:  f.HopLength,
		NMels:      f.NMels,
		NMFCC:      f.NMFCC,
		NBands:     f.NBands,
	}
}

func (c *Config) Policy() acousticverify.Policy {
	v := c.Verification
	return acousticverify.Policy{
		TopK:                v.TopK,
		SimilarityThreshold: v.SimilarityThreshold,
		MatchedPercent:      v.MatchedPercent,
		PartialPercent:      v.PartialPercent,
	}
}

// Embedder builds the configured embedding backend.
func (c *Config) Embedder() embedding.Embedder {
	if c.Embedding.Provider == ProviderHash {
		return embedding.NewHashEmbedder(c.Embedding.Dimension)
	}
	return embedding.NewHTTPEmbedder(c.Embedding.URL, c.Embedding.Dimension)
}

func (c *Config) retryPolicy(timeout time.Duration) retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.Attempts,
		BaseDelay:   time.Duration(c.Retry.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		Timeout:     timeout,
	}
}

// ServiceOptions translates the file into engine options. Callers append
// their own logger or storage overrides.
func (c *Config) ServiceOptions() []acousticverify.Option {
	opts := []acousticverify.Option{
		acousticverify.WithStorageDriver(c.Storage.Driver),
		acousticverify.WithDBPath(c.Storage.Path),
		acousticverify.WithEmbedder(c.Embedder()),
		acousticverify.WithEmbeddingSampleRate(c.Embedding.SampleRate),
		acousticverify.WithFeatureConfig(c.FeatureConfig()),
		acousticverify.WithSegmentDurations(c.Verification.PerceptualDuration, c.Verification.EmbeddingDuration),
		acousticverify.WithMinFillRatio(c.Verification.MinFillRatio),
		acousticverify.WithPolicy(c.Policy()),
		acousticverify.WithRetry(
			c.retryPolicy(time.Duration(c.Embedding.TimeoutSeconds)*time.Second),
			c.retryPolicy(time.Duration(c.Retry.StoreTimeoutSeconds)*time.Second),
		),
	}
	if c.Verification.Concurrency > 0 {
		opts = append(opts, acousticverify.WithConcurrency(c.Verification.Concurrency))
	}
	return opts
}
