package acousticverify

import (
	"context"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/similarity"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

type Service interface {
	RegisterFingerprint(ctx context.Context, buf models.AudioBuffer, opts ...RegisterOption) (*RegisterResult, error)
	Verify(ctx context.Context, buf models.AudioBuffer, fingerprintID string) (*models.VerificationVerdict, error)
	Revoke(ctx context.Context, fingerprintID string) error

	Fingerprint(ctx context.Context, buf models.AudioBuffer) (*FingerprintSet, error)
	FindExact(ctx context.Context, buf models.AudioBuffer) ([]models.Registration, error)
	GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error)
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	Close() error
}

// SimilarityStore is the vector index the engine searches.
type SimilarityStore = similarity.Store

// Registry persists registration metadata next to the vector index.
type Registry interface {
	SaveRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error)
	FindByDigest(ctx context.Context, sha256 string) ([]models.Registration, error)
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	DeleteRegistration(ctx context.Context, fingerprintID string) error
}

type Storage interface {
	SimilarityStore
	Registry
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
