package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/retry"
)

// DefaultDimension is the embedding size of PANNs CNN14.
const DefaultDimension = 2048

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// HTTPEmbedder calls a model service that accepts a WAV upload on POST /embed
// (multipart field "audio") and answers {"embedding": [...], "dimension": N}.
type HTTPEmbedder struct {
	baseURL   string
	dimension int
	client    *http.Client
}

type HTTPOption func(*HTTPEmbedder)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPEmbedder) { h.client = c }
}

func NewHTTPEmbedder(baseURL string, dimension int, opts ...HTTPOption) *HTTPEmbedder {
	h := &HTTPEmbedder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPEmbedder) Dimension() int { return h.dimension }

// Embed uploads samples as a mono 16-bit WAV. 4xx replies are permanent
// rejections; transport errors and 5xx replies may be retried.
func (h *HTTPEmbedder) Embed(ctx context.Context, samples []float64, sampleRate int) ([]float64, error) {
	body, contentType, err := multipartWAV(samples, sampleRate)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/embed", body)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build embed request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if out.Dimension != 0 && out.Dimension != len(out.Embedding) {
		return nil, retry.Permanent(fmt.Errorf("%w: response says %d, carries %d",
			ErrDimensionMismatch, out.Dimension, len(out.Embedding)))
	}
	return out.Embedding, nil
}

// HealthCheck reports whether GET /health answers 200.
func (h *HTTPEmbedder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service unhealthy: %s", resp.Status)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("embed service returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(fmt.Errorf("%w: %w", ErrRejected, err))
	}
	return err
}

// multipartWAV encodes samples through a temp file since the WAV encoder
// needs to seek back and patch the header.
func multipartWAV(samples []float64, sampleRate int) (io.Reader, string, error) {
	tmp, err := os.CreateTemp("", "embed-*.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := audio.EncodeWAV(tmp, samples, sampleRate); err != nil {
		return nil, "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("rewind temp wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "segment.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, tmp); err != nil {
		return nil, "", fmt.Errorf("copy wav into form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}
