package similarity

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"gonum.org/v1/gonum/floats"
)

func randomUnit(rng *rand.Rand, dim int) []float64 {
	v := make([]float64, dim)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	floats.Scale(1/floats.Norm(v, 2), v)
	return v
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestDistanceToSimilarityIsCosine(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a, b := randomUnit(rng, 32), randomUnit(rng, 32)
		cos := floats.Dot(a, b)
		got := DistanceToSimilarity(floats.Distance(a, b, 2))
		if math.Abs(got-cos) > 1e-9 {
			t.Fatalf("similarity %v != cosine %v", got, cos)
		}
	}

	if got := DistanceToSimilarity(0); got != 1 {
		t.Errorf("identical vectors: %v, want 1", got)
	}
	if got := DistanceToSimilarity(2); got != -1 {
		t.Errorf("opposite vectors: %v, want -1", got)
	}
	if got := DistanceToSimilarity(math.Sqrt2); math.Abs(got) > 1e-12 {
		t.Errorf("orthogonal vectors: %v, want 0", got)
	}
}

func TestQueryThresholdAndOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := NewClient(store, fastPolicy())

	records := []models.EmbeddingRecord{
		{SegmentIndex: 0, Vector: []float64{1, 0}},
		{SegmentIndex: 1, Vector: []float64{math.Cos(0.3), math.Sin(0.3)}},
		{SegmentIndex: 2, Vector: []float64{0, 1}},
	}
	if err := c.Insert(ctx, "fp", records); err != nil {
		t.Fatal(err)
	}

	got, err := c.Query(ctx, []float64{math.Cos(0.2), math.Sin(0.2)}, 5, 0.9)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("neighbors = %d, want 2 above threshold", len(got))
	}
	if got[0].SegmentIndex != 1 || got[1].SegmentIndex != 0 {
		t.Errorf("order = %d,%d want 1,0", got[0].SegmentIndex, got[1].SegmentIndex)
	}
	if math.Abs(got[0].Similarity-math.Cos(0.1)) > 1e-9 {
		t.Errorf("similarity = %v, want cos(0.1)", got[0].Similarity)
	}
	if got[0].FingerprintID != "fp" {
		t.Errorf("fingerprint id = %q", got[0].FingerprintID)
	}

	top1, _ := c.Query(ctx, []float64{1, 0}, 1, -1)
	if len(top1) != 1 || top1[0].SegmentIndex != 0 {
		t.Errorf("topK=1 result = %+v", top1)
	}
}

func TestInsertDedupesBySegment(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := NewClient(store, fastPolicy())

	batch := []models.EmbeddingRecord{
		{SegmentIndex: 0, Vector: []float64{1, 0}},
		{SegmentIndex: 0, Vector: []float64{0, 1}},
		{SegmentIndex: 1, Vector: []float64{1, 0}, FingerprintID: "other"},
	}
	if err := c.Insert(ctx, "fp", batch); err != nil {
		t.Fatal(err)
	}
	if err := c.Insert(ctx, "fp", batch); err != nil {
		t.Fatal(err)
	}
	if n := store.Count("fp"); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}
	if n := store.Count("other"); n != 0 {
		t.Errorf("records were not retagged to fp")
	}

	got, _ := c.Query(ctx, []float64{0, 1}, 5, 0.99)
	if len(got) != 1 || got[0].SegmentIndex != 0 {
		t.Errorf("last duplicate should win, got %+v", got)
	}
}

func TestReplaceDropsOldSegments(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := NewClient(store, fastPolicy())

	c.Insert(ctx, "fp", []models.EmbeddingRecord{
		{SegmentIndex: 0, Vector: []float64{1, 0}},
		{SegmentIndex: 1, Vector: []float64{0, 1}},
		{SegmentIndex: 2, Vector: []float64{1, 0}},
	})
	if err := c.Replace(ctx, "fp", []models.EmbeddingRecord{{SegmentIndex: 0, Vector: []float64{0, 1}}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if n := store.Count("fp"); n != 1 {
		t.Errorf("records = %d, want 1", n)
	}

	if err := c.Replace(ctx, "fp", nil); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("empty replacement err = %v, want ErrInvalidRecord", err)
	}
	if n := store.Count("fp"); n != 1 {
		t.Errorf("rejected replacement changed the store: %d records", n)
	}
}

func TestInsertRejectsBadRecords(t *testing.T) {
	c := NewClient(storage.NewMemoryStore(), fastPolicy())
	ctx := context.Background()

	if err := c.Insert(ctx, "", []models.EmbeddingRecord{{Vector: []float64{1}}}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("empty id err = %v", err)
	}
	if err := c.Insert(ctx, "fp", []models.EmbeddingRecord{{Vector: []float64{math.NaN()}}}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("NaN err = %v", err)
	}
	mixed := []models.EmbeddingRecord{{Vector: []float64{1}}, {SegmentIndex: 1, Vector: []float64{1, 0}}}
	if err := c.Insert(ctx, "fp", mixed); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("mixed dimension err = %v", err)
	}
}

type flakyStore struct {
	Store
	fail  int32
	calls atomic.Int32
}

func (f *flakyStore) Search(ctx context.Context, v []float64, k int, filter string) ([]models.SearchHit, error) {
	if f.calls.Add(1) <= f.fail {
		return nil, errors.New("connection refused")
	}
	return f.Store.Search(ctx, v, k, filter)
}

func TestQueryRetriesThenReportsUnavailable(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	mem.Insert(ctx, "fp", []models.EmbeddingRecord{{Vector: []float64{1, 0}}})

	flaky := &flakyStore{Store: mem, fail: 2}
	got, err := NewClient(flaky, fastPolicy()).Query(ctx, []float64{1, 0}, 5, 0.5)
	if err != nil {
		t.Fatalf("Query after transient failures: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("neighbors = %d, want 1", len(got))
	}

	down := &flakyStore{Store: mem, fail: 100}
	_, err = NewClient(down, fastPolicy()).Query(ctx, []float64{1, 0}, 5, 0.5)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
	if got := down.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestQueryPermanentErrorNotRetried(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	mem.Insert(ctx, "fp", []models.EmbeddingRecord{{Vector: []float64{1, 0, 0}}})

	_, err := NewClient(mem, fastPolicy()).Query(ctx, []float64{1, 0}, 5, 0.5)
	if !errors.Is(err, storage.ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}
	if errors.Is(err, ErrStoreUnavailable) {
		t.Error("dimension mismatch must not be reported as unavailable")
	}
}
