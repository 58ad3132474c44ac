package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// MemoryStore keeps everything in maps behind one lock. Each Insert or Replace
// is applied under a single write lock, so a batch is visible all at once.
type MemoryStore struct {
	mu            sync.RWMutex
	dimension     int
	embeddings    map[string]map[int]models.EmbeddingRecord
	registrations map[string]models.Registration
	closed        bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		embeddings:    make(map[string]map[int]models.EmbeddingRecord),
		registrations: make(map[string]models.Registration),
	}
}

func (m *MemoryStore) Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	return m.write(ctx, fingerprintID, records, false)
}

// Replace drops the records of fingerprintID and stores records in their place
// under the same write lock.
func (m *MemoryStore) Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	return m.write(ctx, fingerprintID, records, true)
}

func (m *MemoryStore) write(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord, replace bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dim, err := checkBatch(records)
	if err != nil {
		return err
	}
	if dim == 0 && !replace {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	stored := m.dimension
	if replace && len(m.embeddings) == 1 && m.embeddings[fingerprintID] != nil {
		// fingerprintID holds the only records, so the new set may change the dimension
		stored = 0
	}
	if dim != 0 && stored != 0 && dim != stored {
		return dimensionError(dim, stored)
	}

	segs := m.embeddings[fingerprintID]
	if segs == nil || replace {
		segs = make(map[int]models.EmbeddingRecord, len(records))
	}
	for _, r := range records {
		r.FingerprintID = fingerprintID
		r.Vector = slices.Clone(r.Vector)
		segs[r.SegmentIndex] = r
	}
	if len(segs) == 0 {
		delete(m.embeddings, fingerprintID)
	} else {
		m.embeddings[fingerprintID] = segs
	}
	m.resetDimension(dim)
	return nil
}

// resetDimension records dim as the index dimension, or clears it once the
// index is empty.
func (m *MemoryStore) resetDimension(dim int) {
	switch {
	case len(m.embeddings) == 0:
		m.dimension = 0
	case dim != 0:
		m.dimension = dim
	}
}

func (m *MemoryStore) DeleteByFingerprintID(ctx context.Context, fingerprintID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.embeddings, fingerprintID)
	m.resetDimension(0)
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float64, topK int, filterFingerprintID string) ([]models.SearchHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	if topK <= 0 || m.dimension == 0 {
		return nil, nil
	}
	if len(vector) != m.dimension {
		return nil, dimensionError(len(vector), m.dimension)
	}

	var hits []models.SearchHit
	for id, segs := range m.embeddings {
		if filterFingerprintID != "" && id != filterFingerprintID {
			continue
		}
		for _, r := range segs {
			hits = append(hits, hitOf(r, vector))
		}
	}
	return nearest(hits, topK), nil
}

// Count returns the number of stored records for fingerprintID.
func (m *MemoryStore) Count(fingerprintID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.embeddings[fingerprintID])
}

func (m *MemoryStore) SaveRegistration(ctx context.Context, reg models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.registrations[reg.FingerprintID] = cloneRegistration(reg)
	return nil
}

func (m *MemoryStore) GetRegistration(ctx context.Context, fingerprintID string) (*models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registrations[fingerprintID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRegistration(reg)
	return &out, nil
}

func (m *MemoryStore) FindByDigest(ctx context.Context, sha256 string) ([]models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Registration
	for _, reg := range m.registrations {
		if reg.WholeDigest.SHA256 == sha256 {
			out = append(out, cloneRegistration(reg))
		}
	}
	sortRegistrations(out)
	return out, nil
}

func (m *MemoryStore) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Registration, 0, len(m.registrations))
	for _, reg := range m.registrations {
		out = append(out, cloneRegistration(reg))
	}
	sortRegistrations(out)
	return out, nil
}

func (m *MemoryStore) DeleteRegistration(ctx context.Context, fingerprintID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.registrations[fingerprintID]; !ok {
		return ErrNotFound
	}
	delete(m.registrations, fingerprintID)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneRegistration(reg models.Registration) models.Registration {
	reg.Segments = slices.Clone(reg.Segments)
	return reg
}
