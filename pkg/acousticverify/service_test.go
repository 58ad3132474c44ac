package acousticverify

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const testRate = 8000

func testFeatures() models.FeatureConfig {
	fc := fingerprint.DefaultConfig()
	fc.SampleRate = testRate
	fc.NFFT = 512
	fc.HopLength = 256
	fc.NMels = 40
	return fc
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})
}

func newTestService(t *testing.T, store Storage, opts ...Option) Service {
	t.Helper()
	base := []Option{
		WithStorage(store),
		WithLogger(quietLogger()),
		WithEmbedder(embedding.NewHashEmbedder(64)),
		WithEmbeddingSampleRate(testRate),
		WithFeatureConfig(testFeatures()),
		WithSegmentDurations(1, 2),
		WithRetry(fastRetry(), fastRetry()),
		WithConcurrency(4),
	}
	svc, err := NewService(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func noise(seed int64, seconds float64) models.AudioBuffer {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, int(seconds*testRate))
	for i := range samples {
		samples[i] = 0.5 * (2*rng.Float64() - 1)
	}
	return models.AudioBuffer{Samples: samples, SampleRate: testRate}
}

func register(t *testing.T, svc Service, buf models.AudioBuffer, id string) *RegisterResult {
	t.Helper()
	res, err := svc.RegisterFingerprint(context.Background(), buf, WithFingerprintID(id), WithLabel("test"))
	if err != nil {
		t.Fatalf("RegisterFingerprint: %v", err)
	}
	return res
}

// flakyStore injects failures into a MemoryStore.
type flakyStore struct {
	*storage.MemoryStore
	searchErr error
	insertErr error
	saveErr   error

	// failSearches makes that many Search calls fail before searches succeed.
	failSearches atomic.Int32
}

func (f *flakyStore) Search(ctx context.Context, v []float64, topK int, filter string) ([]models.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.failSearches.Add(-1) >= 0 {
		return nil, errors.New("transient timeout")
	}
	return f.MemoryStore.Search(ctx, v, topK, filter)
}

func (f *flakyStore) Insert(ctx context.Context, id string, records []models.EmbeddingRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryStore.Insert(ctx, id, records)
}

func (f *flakyStore) Replace(ctx context.Context, id string, records []models.EmbeddingRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryStore.Replace(ctx, id, records)
}

func (f *flakyStore) SaveRegistration(ctx context.Context, reg models.Registration) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.SaveRegistration(ctx, reg)
}

type failingEmbedder struct{ dim int }

func (f failingEmbedder) Dimension() int { return f.dim }

func (f failingEmbedder) Embed(context.Context, []float64, int) ([]float64, error) {
	return nil, errors.New("model offline")
}

func TestNewServiceRequiresEmbedder(t *testing.T) {
	_, err := NewService(WithStorage(storage.NewMemoryStore()), WithLogger(quietLogger()))
	if !errors.Is(err, ErrNoEmbedder) {
		t.Fatalf("err = %v, want ErrNoEmbedder", err)
	}
}

func TestNewServiceRejectsBadPolicy(t *testing.T) {
	p := DefaultPolicy()
	p.PartialPercent = 80
	_, err := NewService(
		WithStorage(storage.NewMemoryStore()),
		WithLogger(quietLogger()),
		WithEmbedder(embedding.NewHashEmbedder(8)),
		WithPolicy(p),
	)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestRegisterFingerprint(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(t, store)
	buf := noise(1, 10)

	res := register(t, svc, buf, "track-1")
	if res.FingerprintID != "track-1" || res.Label != "test" {
		t.Errorf("unexpected result identity: %+v", res)
	}
	if len(res.PerceptualFingerprints) != 10 || len(res.Digests) != 10 {
		t.Errorf("got %d fingerprints, %d digests, want 10 each", len(res.PerceptualFingerprints), len(res.Digests))
	}
	if res.EmbeddedSegments != 5 || res.EmbeddingSegments != 5 {
		t.Errorf("embedded %d/%d, want 5/5", res.EmbeddedSegments, res.EmbeddingSegments)
	}
	if res.Replaced {
		t.Error("first registration reported as replaced")
	}
	if got := store.Count("track-1"); got != 5 {
		t.Errorf("store holds %d records, want 5", got)
	}

	reg, err := svc.GetRegistration(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if reg.DurationMs != 10000 || reg.SampleRate != testRate || reg.EmbeddedSegments != 5 {
		t.Errorf("unexpected registration: %+v", reg)
	}
	if reg.WholeDigest != res.WholeDigest {
		t.Error("stored whole digest differs from returned one")
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	res, err := svc.RegisterFingerprint(context.Background(), noise(2, 4))
	if err != nil {
		t.Fatalf("RegisterFingerprint: %v", err)
	}
	if len(res.FingerprintID) != 36 {
		t.Errorf("generated id %q is not a UUID", res.FingerprintID)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.RegisterFingerprint(ctx, models.AudioBuffer{SampleRate: testRate}); !errors.Is(err, ErrEmptyAudio) {
		t.Errorf("empty audio: err = %v", err)
	}
	if _, err := svc.RegisterFingerprint(ctx, noise(3, 4), WithFingerprintID("a:b")); !errors.Is(err, ErrInvalidFingerprintID) {
		t.Errorf("bad id: err = %v", err)
	}
}

func TestRegisterWithoutEmbeddingsFails(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(t, store, WithEmbedder(failingEmbedder{dim: 8}))

	_, err := svc.RegisterFingerprint(context.Background(), noise(4, 6), WithFingerprintID("x"))
	if !errors.Is(err, ErrNoEmbeddings) {
		t.Fatalf("err = %v, want ErrNoEmbeddings", err)
	}
	if _, err := svc.GetRegistration(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("registration should not exist, err = %v", err)
	}
}

func TestRegisterRollsBackOnSaveFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), saveErr: retry.Permanent(errors.New("disk full"))}
	svc := newTestService(t, store)

	if _, err := svc.RegisterFingerprint(context.Background(), noise(5, 6), WithFingerprintID("x")); err == nil {
		t.Fatal("expected registration to fail")
	}
	if got := store.Count("x"); got != 0 {
		t.Errorf("%d embeddings left behind after rollback", got)
	}
}

func TestRegisterInsertFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), insertErr: errors.New("connection reset")}
	svc := newTestService(t, store)

	_, err := svc.RegisterFingerprint(context.Background(), noise(6, 6), WithFingerprintID("x"))
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
	if _, err := svc.GetRegistration(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("registration should not exist, err = %v", err)
	}
}

func TestReRegisterReplacesEmbeddings(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(t, store)

	register(t, svc, noise(7, 10), "song")
	res := register(t, svc, noise(8, 4), "song")
	if !res.Replaced {
		t.Error("second registration not reported as replaced")
	}
	if got := store.Count("song"); got != 2 {
		t.Errorf("store holds %d records, want 2 from the replacement only", got)
	}

	v, err := svc.Verify(context.Background(), noise(7, 10), "song")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusTampered {
		t.Errorf("old audio should no longer match, got %s", v.Status)
	}
}

func TestReRegisterSameContentThenDelete(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	buf := noise(9, 10)

	register(t, svc, buf, "dup")
	register(t, svc, buf, "dup")
	if got := store.Count("dup"); got != 5 {
		t.Fatalf("store holds %d records after registering twice, want 5", got)
	}

	if err := store.DeleteByFingerprintID(ctx, "dup"); err != nil {
		t.Fatalf("DeleteByFingerprintID: %v", err)
	}
	if got := store.Count("dup"); got != 0 {
		t.Errorf("%d records survive a single delete", got)
	}

	v, err := svc.Verify(ctx, buf, "dup")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusTampered || v.MatchedSegments != 0 {
		t.Errorf("verdict after delete: %s %d/%d", v.Status, v.MatchedSegments, v.TotalSegments)
	}
}

func TestReRegisterFailureKeepsPrevious(t *testing.T) {
	tests := []struct {
		name string
		fail func(*flakyStore)
	}{
		{"embeddings", func(f *flakyStore) { f.insertErr = errors.New("connection reset") }},
		{"registry", func(f *flakyStore) { f.saveErr = retry.Permanent(errors.New("disk full")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
			svc := newTestService(t, store)
			ctx := context.Background()
			orig := noise(30, 10)
			first := register(t, svc, orig, "song")

			tt.fail(store)
			if _, err := svc.RegisterFingerprint(ctx, noise(31, 4), WithFingerprintID("song")); err == nil {
				t.Fatal("expected re-registration to fail")
			}
			store.insertErr, store.saveErr = nil, nil

			reg, err := svc.GetRegistration(ctx, "song")
			if err != nil {
				t.Fatalf("previous registration lost: %v", err)
			}
			if reg.WholeDigest != first.WholeDigest || reg.EmbeddedSegments != 5 {
				t.Errorf("registration changed: %+v", reg.WholeDigest)
			}
			if got := store.Count("song"); got != 5 {
				t.Errorf("store holds %d records, want the previous 5", got)
			}

			v, err := svc.Verify(ctx, orig, "song")
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if v.Status != models.StatusMatched || !v.IsExactMatch {
				t.Errorf("original audio no longer verifies: %s exact=%v", v.Status, v.IsExactMatch)
			}
		})
	}
}

func TestVerifyIdenticalAudio(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	buf := noise(10, 10)
	register(t, svc, buf, "orig")

	v, err := svc.Verify(context.Background(), buf, "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusMatched || !v.Matched || v.IsTampered || v.IsPartialMatch {
		t.Errorf("unexpected verdict: %+v", v)
	}
	if v.MatchPercentage != 100 || v.MatchedSegments != 5 || v.TotalSegments != 5 {
		t.Errorf("got %d/%d (%.1f%%), want 5/5", v.MatchedSegments, v.TotalSegments, v.MatchPercentage)
	}
	if !v.IsExactMatch {
		t.Error("identical audio should be an exact match")
	}
	if v.PerceptualSimilarity == nil || math.Abs(*v.PerceptualSimilarity-1) > 1e-9 {
		t.Errorf("perceptual similarity = %v, want 1", v.PerceptualSimilarity)
	}
	for _, m := range v.PerSegmentMatches {
		if !m.Matched || m.TargetIndex != m.SegmentIndex || math.Abs(m.Similarity-1) > 1e-9 {
			t.Errorf("segment %d: %+v", m.SegmentIndex, m)
		}
	}
}

func TestVerifyUnrelatedAudio(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	register(t, svc, noise(11, 10), "orig")

	v, err := svc.Verify(context.Background(), noise(12, 10), "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusTampered || !v.IsTampered || v.Matched {
		t.Errorf("unexpected verdict: %+v", v)
	}
	if v.MatchPercentage != 0 || v.IsExactMatch {
		t.Errorf("unrelated audio scored %.1f%%, exact=%v", v.MatchPercentage, v.IsExactMatch)
	}
	for _, m := range v.PerSegmentMatches {
		if m.TargetIndex != -1 {
			t.Errorf("segment %d matched target segment %d", m.SegmentIndex, m.TargetIndex)
		}
	}
}

func TestVerifyPartialSplice(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	orig := noise(13, 10)
	register(t, svc, orig, "orig")

	spliced := append([]float64{}, orig.Samples[:6*testRate]...)
	spliced = append(spliced, noise(14, 4).Samples...)

	v, err := svc.Verify(context.Background(), models.AudioBuffer{Samples: spliced, SampleRate: testRate}, "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusPartial || !v.IsPartialMatch || v.Matched || v.IsTampered {
		t.Errorf("unexpected verdict: %+v", v)
	}
	if v.MatchedSegments != 3 || v.TotalSegments != 5 || v.MatchPercentage != 60 {
		t.Errorf("got %d/%d (%.1f%%), want 3/5", v.MatchedSegments, v.TotalSegments, v.MatchPercentage)
	}
	if v.IsExactMatch {
		t.Error("spliced audio reported as exact match")
	}
}

func TestVerifyMatchesOnlyTarget(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	buf := noise(15, 6)
	register(t, svc, buf, "a")
	register(t, svc, noise(16, 6), "b")

	v, err := svc.Verify(context.Background(), buf, "b")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusTampered {
		t.Errorf("audio of a verified against b: %s", v.Status)
	}
	for _, m := range v.PerSegmentMatches {
		if len(m.Neighbors) == 0 || m.Neighbors[0].FingerprintID != "a" {
			t.Errorf("segment %d: nearest neighbor should belong to a: %+v", m.SegmentIndex, m.Neighbors)
		}
	}
}

func TestVerifyInconclusive(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	register(t, svc, noise(17, 6), "orig")
	ctx := context.Background()

	tests := []struct {
		name string
		buf  models.AudioBuffer
	}{
		{"empty", models.AudioBuffer{SampleRate: testRate}},
		{"shorter than one segment", noise(18, 0.5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := svc.Verify(ctx, tt.buf, "orig")
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if v.Status != models.StatusInconclusive || v.IsTampered || v.Matched {
				t.Errorf("unexpected verdict: %+v", v)
			}
			if v.Reason == "" {
				t.Error("inconclusive verdict without reason")
			}
		})
	}
}

func TestVerifyStoreUnavailable(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	svc := newTestService(t, store)
	buf := noise(19, 6)
	register(t, svc, buf, "orig")

	store.searchErr = errors.New("connection refused")
	v, err := svc.Verify(context.Background(), buf, "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusStoreUnavailable || v.Matched || v.IsTampered {
		t.Errorf("unexpected verdict: %+v", v)
	}
	if !v.Inconclusive() {
		t.Error("store_unavailable must count as inconclusive")
	}
}

func TestVerifySurvivesOneFailedSearch(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	svc := newTestService(t, store, WithConcurrency(1))
	buf := noise(32, 10)
	register(t, svc, buf, "orig")

	// exhausts the retry budget of the first segment only
	store.failSearches.Store(int32(fastRetry().MaxAttempts))
	v, err := svc.Verify(context.Background(), buf, "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusMatched {
		t.Fatalf("status = %s (%s), want matched", v.Status, v.Reason)
	}
	if v.TotalSegments != 4 || v.MatchedSegments != 4 || len(v.PerSegmentMatches) != 4 {
		t.Errorf("got %d/%d with %d matches, want 4/4", v.MatchedSegments, v.TotalSegments, len(v.PerSegmentMatches))
	}
	for _, m := range v.PerSegmentMatches {
		if m.SegmentIndex == 0 {
			t.Error("failed segment 0 is still counted")
		}
	}
}

func TestVerifyRejectedSearchIsNotUnavailable(t *testing.T) {
	store := storage.NewMemoryStore()
	register(t, newTestService(t, store), noise(33, 6), "orig")

	other := newTestService(t, store, WithEmbedder(embedding.NewHashEmbedder(32)))
	v, err := other.Verify(context.Background(), noise(33, 6), "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.Status != models.StatusInconclusive || v.TotalSegments != 0 {
		t.Errorf("status = %s, want inconclusive for a dimension mismatch", v.Status)
	}
	if !strings.Contains(v.Reason, "dimension mismatch") {
		t.Errorf("reason = %q", v.Reason)
	}
}

func TestVerifyUnknownID(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	ctx := context.Background()

	if _, err := svc.Verify(ctx, noise(20, 4), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Verify(ctx, noise(20, 4), ""); !errors.Is(err, ErrInvalidFingerprintID) {
		t.Errorf("empty id: err = %v, want ErrInvalidFingerprintID", err)
	}
}

func TestVerifyAcrossFeatureConfigs(t *testing.T) {
	store := storage.NewMemoryStore()
	writer := newTestService(t, store)
	buf := noise(21, 6)
	register(t, writer, buf, "orig")

	fc := testFeatures()
	fc.NMFCC = 20
	reader := newTestService(t, store, WithFeatureConfig(fc))

	v, err := reader.Verify(context.Background(), buf, "orig")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.PerceptualSimilarity != nil {
		t.Errorf("fingerprints of different configs were scored: %v", *v.PerceptualSimilarity)
	}
	if v.Reason == "" {
		t.Error("expected a reason for the skipped comparison")
	}
	if v.Status != models.StatusMatched || !v.IsExactMatch {
		t.Errorf("embedding match should be unaffected: %+v", v)
	}
}

func TestRevoke(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	buf := noise(22, 6)
	register(t, svc, buf, "orig")

	if err := svc.Revoke(ctx, "orig"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if got := store.Count("orig"); got != 0 {
		t.Errorf("%d embeddings survive revoke", got)
	}
	if _, err := svc.Verify(ctx, buf, "orig"); !errors.Is(err, ErrNotFound) {
		t.Errorf("verify after revoke: err = %v, want ErrNotFound", err)
	}
	if err := svc.Revoke(ctx, "orig"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second revoke: err = %v, want ErrNotFound", err)
	}
}

func TestFindExact(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	ctx := context.Background()
	buf := noise(23, 4)
	register(t, svc, buf, "orig")

	regs, err := svc.FindExact(ctx, buf)
	if err != nil {
		t.Fatalf("FindExact: %v", err)
	}
	if len(regs) != 1 || regs[0].FingerprintID != "orig" {
		t.Errorf("FindExact = %+v", regs)
	}

	regs, err = svc.FindExact(ctx, noise(24, 4))
	if err != nil {
		t.Fatalf("FindExact: %v", err)
	}
	if len(regs) != 0 {
		t.Errorf("unrelated audio found %d registrations", len(regs))
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	svc := newTestService(t, storage.NewMemoryStore())
	buf := noise(25, 3.5)

	a, err := svc.Fingerprint(context.Background(), buf)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, err := svc.Fingerprint(context.Background(), buf)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(a.Segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(a.Segments))
	}
	for i := range a.Segments {
		if a.Segments[i].Digest != b.Segments[i].Digest {
			t.Errorf("segment %d digest differs between runs", i)
		}
		sim, err := fingerprint.Similarity(a.Segments[i].Fingerprint, b.Segments[i].Fingerprint)
		if err != nil || math.Abs(sim-1) > 1e-12 {
			t.Errorf("segment %d similarity %v, err %v", i, sim, err)
		}
	}
	if a.Whole.EndTime != 3.5 {
		t.Errorf("whole segment ends at %v, want 3.5", a.Whole.EndTime)
	}
}

func TestClassify(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		matched, total int
		want           models.VerdictStatus
	}{
		{10, 10, models.StatusMatched},
		{7, 10, models.StatusMatched},
		{69, 100, models.StatusPartial},
		{3, 10, models.StatusPartial},
		{29, 100, models.StatusTampered},
		{0, 4, models.StatusTampered},
		{0, 0, models.StatusInconclusive},
	}
	for _, tt := range tests {
		v := &models.VerificationVerdict{MatchedSegments: tt.matched, TotalSegments: tt.total}
		classify(v, p)
		if v.Status != tt.want {
			t.Errorf("%d/%d: status %s, want %s", tt.matched, tt.total, v.Status, tt.want)
		}
		flags := 0
		for _, f := range []bool{v.Matched, v.IsPartialMatch, v.IsTampered} {
			if f {
				flags++
			}
		}
		if tt.want != models.StatusInconclusive && flags != 1 {
			t.Errorf("%d/%d: %d outcome flags set", tt.matched, tt.total, flags)
		}
	}
}
