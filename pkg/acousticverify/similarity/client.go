// Package similarity is the engine-side client of the vector store: it
// dedupes writes, bounds every call with a timeout and retry policy, and turns
// raw L2 distances into similarity scores.
package similarity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/dsp"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.85
)

var (
	// ErrStoreUnavailable wraps store failures that persisted through retries.
	ErrStoreUnavailable = errors.New("similarity: store unavailable")
	ErrInvalidRecord    = errors.New("similarity: invalid embedding record")
)

// Store is the vector index. Search returns up to topK records nearest to
// vector by L2 distance, restricted to filterFingerprintID when non-empty.
// Insert must replace records that share (FingerprintID, SegmentIndex).
// Replace swaps every record of fingerprintID for records atomically: readers
// see either the old set or the new one, and a failed Replace changes nothing.
type Store interface {
	Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error
	Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error
	DeleteByFingerprintID(ctx context.Context, fingerprintID string) error
	Search(ctx context.Context, vector []float64, topK int, filterFingerprintID string) ([]models.SearchHit, error)
}

// DistanceToSimilarity converts the L2 distance between two unit vectors to
// their cosine similarity. For |a| = |b| = 1, |a-b|^2 = 2 - 2cos(a,b), so
// cos(a,b) = 1 - d^2/2.
func DistanceToSimilarity(distance float64) float64 {
	return 1 - distance*distance/2
}

type Client struct {
	store  Store
	policy retry.Policy
}

func NewClient(store Store, policy retry.Policy) *Client {
	return &Client{store: store, policy: policy}
}

// Insert writes records for fingerprintID as one batch. Records are tagged
// with fingerprintID and deduplicated by segment index, last one winning.
func (c *Client) Insert(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	batch, err := dedupe(fingerprintID, records)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return c.do(ctx, "insert", func(ctx context.Context) error {
		return c.store.Insert(ctx, fingerprintID, batch)
	})
}

// Replace writes records as the complete set for fingerprintID in one batch,
// dropping segments the new set does not carry.
func (c *Client) Replace(ctx context.Context, fingerprintID string, records []models.EmbeddingRecord) error {
	batch, err := dedupe(fingerprintID, records)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty replacement for %s", ErrInvalidRecord, fingerprintID)
	}
	return c.do(ctx, "replace", func(ctx context.Context) error {
		return c.store.Replace(ctx, fingerprintID, batch)
	})
}

func (c *Client) DeleteByFingerprintID(ctx context.Context, fingerprintID string) error {
	return c.do(ctx, "delete", func(ctx context.Context) error {
		return c.store.DeleteByFingerprintID(ctx, fingerprintID)
	})
}

// Query returns at most topK neighbors whose similarity to vector is at least
// threshold, ordered by descending similarity.
func (c *Client) Query(ctx context.Context, vector []float64, topK int, threshold float64) ([]models.Neighbor, error) {
	if topK <= 0 {
		return nil, nil
	}

	var hits []models.SearchHit
	err := c.do(ctx, "search", func(ctx context.Context) error {
		var err error
		hits, err = c.store.Search(ctx, vector, topK, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return rank(hits, topK, threshold), nil
}

func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := retry.Do(ctx, c.policy, fn)
	if err == nil {
		return nil
	}
	if retry.IsPermanent(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func rank(hits []models.SearchHit, topK int, threshold float64) []models.Neighbor {
	neighbors := make([]models.Neighbor, 0, len(hits))
	for _, h := range hits {
		sim := DistanceToSimilarity(h.Distance)
		if !dsp.Finite(sim) || sim < threshold {
			continue
		}
		neighbors = append(neighbors, models.Neighbor{
			FingerprintID: h.FingerprintID,
			SegmentIndex:  h.SegmentIndex,
			StartTime:     h.StartTime,
			EndTime:       h.EndTime,
			Distance:      h.Distance,
			Similarity:    sim,
		})
	}
	slices.SortStableFunc(neighbors, func(a, b models.Neighbor) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors
}

func dedupe(fingerprintID string, records []models.EmbeddingRecord) ([]models.EmbeddingRecord, error) {
	if fingerprintID == "" {
		return nil, fmt.Errorf("%w: empty fingerprint id", ErrInvalidRecord)
	}

	pos := make(map[int]int, len(records))
	batch := make([]models.EmbeddingRecord, 0, len(records))
	dim := -1
	for _, r := range records {
		if len(r.Vector) == 0 || !dsp.AllFinite(r.Vector) {
			return nil, fmt.Errorf("%w: segment %d has an empty or non-finite vector", ErrInvalidRecord, r.SegmentIndex)
		}
		if dim >= 0 && len(r.Vector) != dim {
			return nil, fmt.Errorf("%w: mixed dimensions %d and %d", ErrInvalidRecord, dim, len(r.Vector))
		}
		dim = len(r.Vector)

		r.FingerprintID = fingerprintID
		if i, ok := pos[r.SegmentIndex]; ok {
			batch[i] = r
			continue
		}
		pos[r.SegmentIndex] = len(batch)
		batch = append(batch, r)
	}
	return batch, nil
}
