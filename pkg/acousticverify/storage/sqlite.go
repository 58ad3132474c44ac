//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "acousticverify.sqlite3"

const searchBatchSize = 1000

type SQLiteStore struct {
	DB *gorm.DB
	db *sql.DB
}

type Embedding struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	FingerprintID string  `gorm:"type:varchar(64);uniqueIndex:idx_embedding_segment,priority:1;not null"`
	SegmentIndex  int     `gorm:"uniqueIndex:idx_embedding_segment,priority:2;not null"`
	StartTime     float64 `gorm:"not null"`
	EndTime       float64 `gorm:"not null"`
	Dimension     int     `gorm:"not null"`
	Vector        []byte  `gorm:"not null"`
}

type Registration struct {
	FingerprintID    string                      `gorm:"primaryKey;type:varchar(64)"`
	Label            string                      `gorm:"index:idx_registration_label"`
	DurationMs       int                         `gorm:"not null"`
	SampleRate       int                         `gorm:"not null"`
	DigestSHA256     string                      `gorm:"column:digest_sha256;type:char(64);index:idx_registration_sha256"`
	DigestXXHash64   string                      `gorm:"column:digest_xxhash64;type:char(16)"`
	WholeFingerprint models.SegmentFingerprint   `gorm:"serializer:json"`
	Segments         []models.SegmentFingerprint `gorm:"serializer:json"`
	EmbeddedSegments int
	CreatedAt        time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath. An empty path
// falls back to ACOUSTIC_DB_PATH and then DefaultDBFile.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = os.Getenv("ACOUSTIC_DB_PATH")
	}
	if dbPath == "" {
		dbPath = DefaultDBFile
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Embedding{}, &Registration{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &SQLiteStore{DB: db, db: sqlDB}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) storedDimension(tx *gorm.DB) (int, error) {
	var row Embedding
	err := tx.Select("dimension").Limit(1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading stored dimension: %w", err)
	}
	return row.Dimension, nil
}

// Insert upserts the batch on (fingerprint_id, segment_index) inside one
// transaction.
func (s *SQLiteStore) Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	dim, err := checkBatch(records)
	if err != nil || dim == 0 {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.upsert(tx, fingerprintID, records, dim)
	})
}

// Replace deletes the rows of fingerprintID and writes records in the same
// transaction.
func (s *SQLiteStore) Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	dim, err := checkBatch(records)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("fingerprint_id = ?", fingerprintID).Delete(&Embedding{}).Error; err != nil {
			return fmt.Errorf("deleting embeddings: %w", err)
		}
		if dim == 0 {
			return nil
		}
		return s.upsert(tx, fingerprintID, records, dim)
	})
}

func (s *SQLiteStore) upsert(tx *gorm.DB, fingerprintID string, records []models.EmbeddingRecord, dim int) error {
	stored, err := s.storedDimension(tx)
	if err != nil {
		return err
	}
	if stored != 0 && stored != dim {
		return dimensionError(dim, stored)
	}

	rows := make([]Embedding, len(records))
	for i, r := range records {
		rows[i] = Embedding{
			FingerprintID: fingerprintID,
			SegmentIndex:  r.SegmentIndex,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			Dimension:     dim,
			Vector:        encodeVector(r.Vector),
		}
	}

	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint_id"}, {Name: "segment_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"start_time", "end_time", "dimension", "vector"}),
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("batch insert embeddings: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteByFingerprintID(ctx context.Context, fingerprintID string) error {
	err := s.DB.WithContext(ctx).Where("fingerprint_id = ?", fingerprintID).Delete(&Embedding{}).Error
	if err != nil {
		return fmt.Errorf("deleting embeddings: %w", err)
	}
	return nil
}

// Search scans embeddings in batches and keeps the topK nearest.
func (s *SQLiteStore) Search(ctx context.Context, vector []float64, topK int, filterFingerprintID string) ([]models.SearchHit, error) {
	if topK <= 0 {
		return nil, nil
	}

	query := s.DB.WithContext(ctx).Model(&Embedding{})
	if filterFingerprintID != "" {
		query = query.Where("fingerprint_id = ?", filterFingerprintID)
	}

	var (
		hits []models.SearchHit
		rows []Embedding
	)
	res := query.FindInBatches(&rows, searchBatchSize, func(tx *gorm.DB, batch int) error {
		for _, row := range rows {
			if row.Dimension != len(vector) {
				return dimensionError(len(vector), row.Dimension)
			}
			vec, err := decodeVector(row.Vector)
			if err != nil {
				return err
			}
			hits = append(hits, hitOf(models.EmbeddingRecord{
				FingerprintID: row.FingerprintID,
				SegmentIndex:  row.SegmentIndex,
				StartTime:     row.StartTime,
				EndTime:       row.EndTime,
				Vector:        vec,
			}, vector))
		}
		hits = nearest(hits, topK)
		return nil
	})
	if res.Error != nil {
		if errors.Is(res.Error, ErrDimensionMismatch) {
			return nil, res.Error
		}
		return nil, fmt.Errorf("searching embeddings: %w", res.Error)
	}
	return hits, nil
}

func (s *SQLiteStore) SaveRegistration(ctx context.Context, reg models.Registration) error {
	row := Registration{
		FingerprintID:    reg.FingerprintID,
		Label:            reg.Label,
		DurationMs:       reg.DurationMs,
		SampleRate:       reg.SampleRate,
		DigestSHA256:     reg.WholeDigest.SHA256,
		DigestXXHash64:   reg.WholeDigest.XXHash64,
		WholeFingerprint: reg.WholeFingerprint,
		Segments:         reg.Segments,
		EmbeddedSegments: reg.EmbeddedSegments,
		CreatedAt:        reg.CreatedAt,
	}
	if err := s.DB.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("saving registration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error) {
	var row Registration
	err := s.DB.WithContext(ctx).Where("fingerprint_id = ?", fingerprintID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying registration: %w", err)
	}
	reg := row.toModel()
	return &reg, nil
}

func (s *SQLiteStore) FindByDigest(ctx context.Context, sha256 string) ([]models.Registration, error) {
	var rows []Registration
	err := s.DB.WithContext(ctx).Where("digest_sha256 = ?", sha256).Order("created_at, fingerprint_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying registrations by digest: %w", err)
	}
	return toModels(rows), nil
}

func (s *SQLiteStore) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	var rows []Registration
	if err := s.DB.WithContext(ctx).Order("created_at, fingerprint_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing registrations: %w", err)
	}
	return toModels(rows), nil
}

func (s *SQLiteStore) DeleteRegistration(ctx context.Context, fingerprintID string) error {
	res := s.DB.WithContext(ctx).Where("fingerprint_id = ?", fingerprintID).Delete(&Registration{})
	if res.Error != nil {
		return fmt.Errorf("deleting registration: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Registration) toModel() models.Registration {
	return models.Registration{
		FingerprintID:    r.FingerprintID,
		Label:            r.Label,
		DurationMs:       r.DurationMs,
		SampleRate:       r.SampleRate,
		WholeDigest:      models.ContentDigest{SHA256: r.DigestSHA256, XXHash64: r.DigestXXHash64},
		WholeFingerprint: r.WholeFingerprint,
		Segments:         r.Segments,
		EmbeddedSegments: r.EmbeddedSegments,
		CreatedAt:        r.CreatedAt,
	}
}

func toModels(rows []Registration) []models.Registration {
	out := make([]models.Registration, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}
