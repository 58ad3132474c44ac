// Package acousticverify registers reference recordings and verifies
// candidate clips against them. A registration stores per-segment perceptual
// fingerprints, exact content digests and model embeddings; verification
// searches the embeddings segment by segment and classifies the result.
package acousticverify

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/similarity"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// verificationService is the default implementation of the Service interface.
// Everything it holds is fixed at construction.
type verificationService struct {
	storage    Storage
	similarity *similarity.Client
	adapter    *embedding.Adapter
	extractor  *fingerprint.Extractor
	perceptual segment.Segmenter
	embedding  segment.Segmenter
	log        Logger
	config     Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Embedder == nil {
		return nil, ErrNoEmbedder
	}
	if err := validatePolicy(cfg.Policy); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	extractor, err := fingerprint.NewExtractor(cfg.Features)
	if err != nil {
		return nil, err
	}
	perceptual, err := segment.New(cfg.PerceptualDuration, cfg.MinFillRatio)
	if err != nil {
		return nil, fmt.Errorf("%w: perceptual segments: %w", ErrInvalidConfig, err)
	}
	embeddingSeg, err := segment.New(cfg.EmbeddingDuration, cfg.MinFillRatio)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding segments: %w", ErrInvalidConfig, err)
	}
	adapter, err := embedding.NewAdapter(cfg.Embedder, cfg.EmbeddingSampleRate, cfg.EmbeddingDuration, cfg.EmbedRetry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	stor := cfg.Storage
	if stor == nil {
		var log *logger.Logger
		if l, ok := cfg.Logger.(*logger.Logger); ok {
			log = l
		}
		stor, err = storage.Open(cfg.StorageDriver, cfg.DBPath, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
	}

	return &verificationService{
		storage:    stor,
		similarity: similarity.NewClient(stor, cfg.StoreRetry),
		adapter:    adapter,
		extractor:  extractor,
		perceptual: perceptual,
		embedding:  embeddingSeg,
		log:        cfg.Logger,
		config:     *cfg,
	}, nil
}

func validatePolicy(p Policy) error {
	var errs []error
	if p.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", p.TopK))
	}
	if p.SimilarityThreshold < -1 || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("similarity threshold must be in [-1,1], got %v", p.SimilarityThreshold))
	}
	if p.PartialPercent < 0 || p.MatchedPercent > 100 || p.PartialPercent > p.MatchedPercent {
		errs = append(errs, fmt.Errorf("need 0 <= partial (%v) <= matched (%v) <= 100", p.PartialPercent, p.MatchedPercent))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// storeCall runs a registry operation under the store retry policy.
// ErrNotFound is final and never retried.
func (s *verificationService) storeCall(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, s.config.StoreRetry, func(ctx context.Context) error {
		err := fn(ctx)
		if errors.Is(err, ErrNotFound) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (s *verificationService) GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error) {
	var reg *models.Registration
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		reg, err = s.storage.GetRegistration(ctx, fingerprintID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func (s *verificationService) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		regs, err = s.storage.ListRegistrations(ctx)
		return err
	})
	return regs, err
}

// FindExact returns the registrations whose whole-file content is
// bit-identical to buf.
func (s *verificationService) FindExact(ctx context.Context, buf models.AudioBuffer) ([]models.Registration, error) {
	if buf.Empty() {
		return nil, ErrEmptyAudio
	}
	digest := digestOf(buf)

	var regs []models.Registration
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		regs, err = s.storage.FindByDigest(ctx, digest.SHA256)
		return err
	})
	return regs, err
}

// Revoke removes every embedding of fingerprintID and its registration.
// Embeddings are removed first so a half-finished revoke never leaves a
// matchable id without metadata.
func (s *verificationService) Revoke(ctx context.Context, fingerprintID string) error {
	if fingerprintID == "" {
		return ErrInvalidFingerprintID
	}
	if err := s.similarity.DeleteByFingerprintID(ctx, fingerprintID); err != nil {
		return fmt.Errorf("revoke %s: %w", fingerprintID, err)
	}
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.storage.DeleteRegistration(ctx, fingerprintID)
	})
	if err != nil {
		return fmt.Errorf("revoke %s: %w", fingerprintID, err)
	}
	s.log.Infof("Revoked fingerprint %s", fingerprintID)
	return nil
}

func (s *verificationService) Close() error {
	return s.storage.Close()
}
