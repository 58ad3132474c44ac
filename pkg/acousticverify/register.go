package acousticverify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"github.com/himanishpuri/AcousticVerify/pkg/utils"
)

// RegisterFingerprint fingerprints and embeds buf and stores it as one
// registration. Segments that fail to embed are skipped, but any other
// failure aborts the registration and undoes whatever was written.
// Registering an existing id replaces it; if that fails the previous
// registration stays.
func (s *verificationService) RegisterFingerprint(ctx context.Context, buf models.AudioBuffer, opts ...RegisterOption) (*RegisterResult, error) {
	if buf.Empty() {
		return nil, ErrEmptyAudio
	}

	var ro registerOptions
	for _, opt := range opts {
		opt(&ro)
	}
	id := ro.fingerprintID
	if id == "" {
		id = utils.GenerateUUID()
	}
	if !utils.ValidFingerprintID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFingerprintID, id)
	}

	s.log.Infof("Registering %s (%.1fs @ %d Hz)", id, buf.Duration(), buf.SampleRate)

	set, err := s.Fingerprint(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting failed: %w", err)
	}

	records, total, err := s.embedSegments(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: 0 of %d segments", ErrNoEmbeddings, total)
	}
	s.log.Infof("Embedded %d/%d segments", len(records), total)

	prev, err := s.existing(ctx, id)
	if err != nil {
		return nil, err
	}

	reg := models.Registration{
		FingerprintID:    id,
		Label:            ro.label,
		DurationMs:       int(math.Round(buf.Duration() * 1000)),
		SampleRate:       buf.SampleRate,
		WholeDigest:      set.Whole.Digest,
		WholeFingerprint: set.Whole,
		Segments:         set.Segments,
		EmbeddedSegments: len(records),
		CreatedAt:        time.Now().UTC(),
	}
	if prev != nil {
		err = s.replace(ctx, prev, reg, records)
	} else {
		err = s.insert(ctx, reg, records)
	}
	if err != nil {
		return nil, err
	}

	s.log.Infof("Registered %s with %d embeddings", id, len(records))
	return &RegisterResult{
		FingerprintID:          id,
		Label:                  ro.label,
		PerceptualFingerprints: set.Segments,
		Digests:                set.Digests(),
		WholeDigest:            set.Whole.Digest,
		EmbeddedSegments:       len(records),
		EmbeddingSegments:      total,
		Replaced:               prev != nil,
	}, nil
}

// existing returns the current registration under id, or nil.
func (s *verificationService) existing(ctx context.Context, id string) (*models.Registration, error) {
	prev, err := s.GetRegistration(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: looking up %s: %w", ErrStoreUnavailable, id, err)
	}
	return prev, nil
}

// insert stores a new registration. Embeddings go first; if the registry
// write fails they are removed again.
func (s *verificationService) insert(ctx context.Context, reg models.Registration, records []models.EmbeddingRecord) error {
	drop := func(ctx context.Context) error {
		return s.similarity.DeleteByFingerprintID(ctx, reg.FingerprintID)
	}
	if err := s.similarity.Insert(ctx, reg.FingerprintID, records); err != nil {
		s.rollback(drop, reg.FingerprintID)
		return fmt.Errorf("failed to store embeddings: %w", err)
	}
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.storage.SaveRegistration(ctx, reg)
	})
	if err != nil {
		s.rollback(drop, reg.FingerprintID)
		return fmt.Errorf("failed to save registration: %w", err)
	}
	return nil
}

// replace swaps prev for reg. The registry row is written first and the
// embeddings are swapped in one Replace, so a failure at either step leaves
// prev and its embeddings in place.
func (s *verificationService) replace(ctx context.Context, prev *models.Registration, reg models.Registration, records []models.EmbeddingRecord) error {
	s.log.Infof("Replacing existing registration %s", reg.FingerprintID)
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.storage.SaveRegistration(ctx, reg)
	})
	if err != nil {
		return fmt.Errorf("failed to save registration: %w", err)
	}

	if err := s.similarity.Replace(ctx, reg.FingerprintID, records); err != nil {
		s.rollback(func(ctx context.Context) error {
			return s.storage.SaveRegistration(ctx, *prev)
		}, reg.FingerprintID)
		return fmt.Errorf("failed to store embeddings: %w", err)
	}
	return nil
}

// rollback undoes part of a failed registration. It runs on a fresh context
// so it still executes when the caller's context is what failed.
func (s *verificationService) rollback(undo func(ctx context.Context) error, id string) {
	timeout := max(s.config.StoreRetry.Timeout, DefaultStoreTimeout)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := undo(ctx); err != nil {
		s.log.Errorf("Rollback of %s failed: %v", id, err)
	}
}

// digestOf is the whole-buffer content digest.
func digestOf(buf models.AudioBuffer) models.ContentDigest {
	return fingerprint.Digest(buf.Samples)
}
