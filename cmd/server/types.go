package main

import (
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// Upload limits for multipart requests.
const (
	maxRegisterUpload = 200 << 20
	maxQueryUpload    = 100 << 20
)

// RegistrationDTO represents a registration in API responses. Per-segment
// fingerprints are left out; they are only useful to the engine.
type RegistrationDTO struct {
	FingerprintID    string               `json:"fingerprint_id"`
	Label            string               `json:"label,omitempty"`
	DurationMs       int                  `json:"duration_ms"`
	SampleRate       int                  `json:"sample_rate"`
	WholeDigest      models.ContentDigest `json:"whole_digest"`
	Segments         int                  `json:"segments"`
	EmbeddedSegments int                  `json:"embedded_segments"`
	CreatedAt        time.Time            `json:"created_at"`
}

func registrationDTO(r models.Registration) RegistrationDTO {
	return RegistrationDTO{
		FingerprintID:    r.FingerprintID,
		Label:            r.Label,
		DurationMs:       r.DurationMs,
		SampleRate:       r.SampleRate,
		WholeDigest:      r.WholeDigest,
		Segments:         len(r.Segments),
		EmbeddedSegments: r.EmbeddedSegments,
		CreatedAt:        r.CreatedAt,
	}
}

// ListRegistrationsResponse is the response for GET /api/registrations
type ListRegistrationsResponse struct {
	Registrations []RegistrationDTO `json:"registrations"`
	Count         int               `json:"count"`
}

// RegisterResponse is the response for POST /api/registrations
type RegisterResponse struct {
	Message string                         `json:"message"`
	Result  *acousticverify.RegisterResult `json:"result"`
}

// RevokeResponse is the response for DELETE /api/registrations/{id}
type RevokeResponse struct {
	Message       string `json:"message"`
	FingerprintID string `json:"fingerprint_id"`
}

// DigestResponse is the response for POST /api/digest
type DigestResponse struct {
	Whole    models.ContentDigest   `json:"whole"`
	Segments []models.ContentDigest `json:"segments"`
}

// MetricsResponse provides server health and store metrics
type MetricsResponse struct {
	Status            string `json:"status"`
	StorageDriver     string `json:"storage_driver"`
	StoragePath       string `json:"storage_path,omitempty"`
	RegistrationCount int    `json:"registration_count"`
	EmbeddingCount    int    `json:"embedding_count"`
	SampleRate        int    `json:"sample_rate"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
