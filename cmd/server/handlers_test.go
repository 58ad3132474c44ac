package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/embedding"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/storage"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

const testRate = 8000

// setupTestServer serves an engine backed by an in-memory store.
func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger.SetOutput(io.Discard)

	fc := fingerprint.DefaultConfig()
	fc.SampleRate = testRate
	fc.NFFT = 512
	fc.HopLength = 256
	fc.NMels = 40

	fast := retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	service, err := acousticverify.NewService(
		acousticverify.WithStorage(storage.NewMemoryStore()),
		acousticverify.WithLogger(logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})),
		acousticverify.WithEmbedder(embedding.NewHashEmbedder(32)),
		acousticverify.WithEmbeddingSampleRate(testRate),
		acousticverify.WithFeatureConfig(fc),
		acousticverify.WithSegmentDurations(1, 2),
		acousticverify.WithRetry(fast, fast),
	)
	if err != nil {
		t.Fatalf("Failed to create test service: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	server := NewServer(service, &ServerConfig{
		TempDir:        t.TempDir(),
		SampleRate:     testRate,
		StorageDriver:  storage.DriverMemory,
		AllowedOrigins: []string{"*"},
	})
	ts := httptest.NewServer(server.setupRoutes())
	t.Cleanup(ts.Close)
	return ts
}

// noiseWAV writes seconds of seeded noise as a WAV file and returns its bytes.
func noiseWAV(t *testing.T, seed int64, seconds float64) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	samples := make([]float64, int(seconds*testRate))
	for i := range samples {
		samples[i] = 0.5 * (2*rng.Float64() - 1)
	}
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := audio.WriteWAV(path, samples, testRate); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

func postAudio(t *testing.T, url string, wav []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if wav != nil {
		part, err := mw.CreateFormFile("audio", "clip.wav")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		part.Write(wav)
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS header *, got %q", got)
	}
}

func TestRegisterVerifyRevoke(t *testing.T) {
	ts := setupTestServer(t)
	wav := noiseWAV(t, 1, 6)

	resp := postAudio(t, ts.URL+"/api/registrations", wav, map[string]string{
		"fingerprint_id": "master",
		"label":          "Master take",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	reg := decode[RegisterResponse](t, resp)
	if reg.Result.FingerprintID != "master" || reg.Result.EmbeddedSegments != 3 {
		t.Fatalf("unexpected register result: %+v", reg.Result)
	}

	resp = postAudio(t, ts.URL+"/api/verify", wav, map[string]string{"fingerprint_id": "master"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d", resp.StatusCode)
	}
	verdict := decode[models.VerificationVerdict](t, resp)
	if verdict.Status != models.StatusMatched || !verdict.IsExactMatch {
		t.Errorf("expected exact match, got %+v", verdict)
	}

	resp = postAudio(t, ts.URL+"/api/verify", noiseWAV(t, 2, 6), map[string]string{"fingerprint_id": "master"})
	if verdict := decode[models.VerificationVerdict](t, resp); verdict.Status != models.StatusTampered {
		t.Errorf("unrelated clip: expected tampered, got %s", verdict.Status)
	}

	list, err := http.Get(ts.URL + "/api/registrations")
	if err != nil {
		t.Fatalf("GET /api/registrations: %v", err)
	}
	defer list.Body.Close()
	if got := decode[ListRegistrationsResponse](t, list); got.Count != 1 || got.Registrations[0].Label != "Master take" {
		t.Errorf("unexpected listing: %+v", got)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/registrations/master", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", del.StatusCode)
	}

	get, err := http.Get(ts.URL + "/api/registrations/master")
	if err != nil {
		t.Fatalf("GET registration: %v", err)
	}
	get.Body.Close()
	if get.StatusCode != http.StatusNotFound {
		t.Errorf("after revoke: expected 404, got %d", get.StatusCode)
	}
}

func TestVerifyErrors(t *testing.T) {
	ts := setupTestServer(t)
	wav := noiseWAV(t, 3, 4)

	tests := []struct {
		name   string
		wav    []byte
		fields map[string]string
		want   int
	}{
		{"missing audio", nil, map[string]string{"fingerprint_id": "x"}, http.StatusBadRequest},
		{"missing id", wav, nil, http.StatusBadRequest},
		{"unknown id", wav, map[string]string{"fingerprint_id": "nope"}, http.StatusNotFound},
		{"not audio", []byte("definitely not a wav file"), map[string]string{"fingerprint_id": "x"}, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postAudio(t, ts.URL+"/api/verify", tt.wav, tt.fields)
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestDigestAndExact(t *testing.T) {
	ts := setupTestServer(t)
	wav := noiseWAV(t, 4, 3)

	resp := postAudio(t, ts.URL+"/api/digest", wav, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("digest: expected 200, got %d", resp.StatusCode)
	}
	digest := decode[DigestResponse](t, resp)
	if len(digest.Segments) != 3 || digest.Whole.SHA256 == "" {
		t.Fatalf("unexpected digests: %+v", digest)
	}

	postAudio(t, ts.URL+"/api/registrations", wav, map[string]string{"fingerprint_id": "a"})
	resp = postAudio(t, ts.URL+"/api/exact", wav, nil)
	exact := decode[ListRegistrationsResponse](t, resp)
	if exact.Count != 1 || exact.Registrations[0].WholeDigest.SHA256 != digest.Whole.SHA256 {
		t.Errorf("unexpected exact matches: %+v", exact)
	}
}
