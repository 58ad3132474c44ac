package config

import (
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/similarity"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
)

const (
	ProviderHTTP = "http"
	ProviderHash = "hash"

	defaultEmbeddingURL = "http://127.0.0.1:8000"
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver: storage.DriverSQLite,
			Path:   storage.DefaultDBFile,
		},
		Embedding: Embedding{
			Provider:       ProviderHTTP,
			URL:            defaultEmbeddingURL,
			Dimension:      embedding.DefaultDimension,
			SampleRate:     embedding.DefaultModelSampleRate,
			TimeoutSeconds: int(acousticverify.DefaultEmbedTimeout.Seconds()),
		},
		Features: Features{
			SampleRate: fingerprint.DefaultSampleRate,
			NFFT:       fingerprint.DefaultNFFT,
			HopLength:  fingerprint.DefaultHopLength,
			NMels:      fingerprint.DefaultNMels,
			NMFCC:      fingerprint.DefaultNMFCC,
			NBands:     fingerprint.DefaultNBands,
		},
		Verification: Verification{
			PerceptualDuration:  segment.DefaultPerceptualDuration,
			EmbeddingDuration:   segment.DefaultEmbeddingDuration,
			MinFillRatio:        segment.DefaultMinFillRatio,
			TopK:                similarity.DefaultTopK,
			SimilarityThreshold: similarity.DefaultThreshold,
			MatchedPercent:      acousticverify.DefaultMatchedPercent,
			PartialPercent:      acousticverify.DefaultPartialPercent,
		},
		Retry: Retry{
			Attempts:            retry.DefaultMaxAttempts,
			BaseDelayMs:         int(retry.DefaultBaseDelay.Milliseconds()),
			MaxDelayMs:          int(retry.DefaultMaxDelay.Milliseconds()),
			StoreTimeoutSeconds: int(acousticverify.DefaultStoreTimeout.Seconds()),
		},
		Logging: Logging{Level: "info"},
	}
}
