package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateVerification()...)
	errs = append(errs, c.validateRetry()...)
	if err := fingerprint.ValidateConfig(c.FeatureConfig()); err != nil {
		errs = append(errs, fmt.Errorf("features: %w", err))
	}
	if _, ok := logger.ParseLevel(c.Logging.Level); !ok && c.Logging.Level != "" {
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	return errors.Join(errs...)
}

func (c *Config) validateStorage() []error {
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverBadger, storage.DriverMemory:
	default:
		return []error{fmt.Errorf("storage.driver %q must be sqlite, badger or memory", c.Storage.Driver)}
	}
	if c.Storage.Driver == storage.DriverBadger && c.Storage.Path == "" {
		return []error{errors.New("storage.path is required for the badger driver")}
	}
	return nil
}

func (c *Config) validateEmbedding() []error {
	var errs []error
	e := c.Embedding
	switch e.Provider {
	case ProviderHTTP:
		u, err := url.Parse(e.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("embedding.url %q is not an absolute URL", e.URL))
		}
	case ProviderHash:
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q must be http or hash", e.Provider))
	}
	if e.Dimension <= 0 {
		errs = append(errs, errors.New("embedding.dimension must be positive"))
	}
	if e.SampleRate <= 0 {
		errs = append(errs, errors.New("embedding.sample_rate must be positive"))
	}
	if e.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("embedding.timeout_seconds must be positive"))
	}
	return errs
}

func (c *Config) validateVerification() []error {
	var errs []error
	v := c.Verification
	if v.PerceptualDuration <= 0 {
		errs = append(errs, errors.New("verification.perceptual_duration must be positive"))
	}
	if v.EmbeddingDuration <= 0 {
		errs = append(errs, errors.New("verification.embedding_duration must be positive"))
	}
	if v.MinFillRatio < 0 || v.MinFillRatio > 1 {
		errs = append(errs, errors.New("verification.min_fill_ratio must be between 0 and 1"))
	}
	if v.TopK <= 0 {
		errs = append(errs, errors.New("verification.top_k must be positive"))
	}
	if v.SimilarityThreshold < -1 || v.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("verification.similarity_threshold must be between -1 and 1"))
	}
	if v.PartialPercent < 0 || v.MatchedPercent > 100 || v.PartialPercent > v.MatchedPercent {
		errs = append(errs, errors.New("verification thresholds need 0 <= partial_percent <= matched_percent <= 100"))
	}
	if v.Concurrency < 0 {
		errs = append(errs, errors.New("verification.concurrency must not be negative"))
	}
	return errs
}

func (c *Config) validateRetry() []error {
	var errs []error
	r := c.Retry
	if r.Attempts <= 0 {
		errs = append(errs, errors.New("retry.attempts must be positive"))
	}
	if r.BaseDelayMs < 0 || r.MaxDelayMs < 0 {
		errs = append(errs, errors.New("retry delays must not be negative"))
	}
	if r.StoreTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("retry.store_timeout_seconds must be positive"))
	}
	return errs
}
