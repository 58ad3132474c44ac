// Package storage persists embedding records and registrations. Every backend
// answers nearest-neighbor searches by brute-force L2 distance; similarity
// conversion is left to the caller.
package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrNotFound          = errors.New("storage: not found")
	ErrDimensionMismatch = errors.New("storage: vector dimension mismatch")
	ErrClosed            = errors.New("storage: store is closed")
)

const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// Store is implemented by every backend.
type Store interface {
	Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error
	Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error
	DeleteByFingerprintID(ctx context.Context, fingerprintID string) error
	Search(ctx context.Context, vector []float64, topK int, filterFingerprintID string) ([]models.SearchHit, error)

	SaveRegistration(ctx context.Context, reg models.Registration) error
	GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error)
	FindByDigest(ctx context.Context, sha256 string) ([]models.Registration, error)
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	DeleteRegistration(ctx context.Context, fingerprintID string) error

	Close() error
}

// Open returns the backend named by driver. path is a database file for
// sqlite, a directory for badger, and ignored for memory.
func Open(driver, path string, log *logger.Logger) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "":
		return NewSQLiteStore(path)
	case DriverBadger:
		return NewBadgerStore(BadgerOptions{Dir: path, Logger: NewBadgerLogger(log)})
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

func dimensionError(got, want int) error {
	return retry.Permanent(fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, got, want))
}

// checkBatch verifies all records share one dimension and returns it.
func checkBatch(records []models.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dim := len(records[0].Vector)
	for _, r := range records[1:] {
		if len(r.Vector) != dim {
			return 0, dimensionError(len(r.Vector), dim)
		}
	}
	return dim, nil
}

func l2(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func hitOf(r models.EmbeddingRecord, query []float64) models.SearchHit {
	return models.SearchHit{
		FingerprintID: r.FingerprintID,
		SegmentIndex:  r.SegmentIndex,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		Distance:      l2(r.Vector, query),
	}
}

// nearest keeps the topK hits with the smallest distance, ties broken by
// fingerprint id and segment index so results are stable.
func nearest(hits []models.SearchHit, topK int) []models.SearchHit {
	slices.SortFunc(hits, func(a, b models.SearchHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		if c := cmp.Compare(a.FingerprintID, b.FingerprintID); c != 0 {
			return c
		}
		return cmp.Compare(a.SegmentIndex, b.SegmentIndex)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func sortRegistrations(regs []models.Registration) {
	slices.SortFunc(regs, func(a, b models.Registration) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.FingerprintID, b.FingerprintID)
	})
}
