package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/logger"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service acousticverify.Service
	config  *ServerConfig
	log     acousticverify.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	TempDir        string
	SampleRate     int
	StorageDriver  string
	StoragePath    string
	AllowedOrigins []string
}

func NewServer(service acousticverify.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.With("server"),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// respondEngineError maps engine errors onto HTTP statuses.
func (s *Server) respondEngineError(w http.ResponseWriter, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, acousticverify.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, acousticverify.ErrInvalidFingerprintID), errors.Is(err, acousticverify.ErrEmptyAudio):
		status = http.StatusBadRequest
	case errors.Is(err, acousticverify.ErrNoEmbeddings):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, acousticverify.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= 500 {
		s.log.Errorf("Failed to %s: %v", action, err)
	} else {
		s.log.Warnf("Failed to %s: %v", action, err)
	}
	s.respondError(w, status, fmt.Sprintf("Failed to %s: %v", action, err))
}

// readUpload parses a multipart form and decodes its "audio" file at the
// fingerprint sample rate.
func (s *Server) readUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, maxBytes int64) (models.AudioBuffer, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.log.Errorf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return models.AudioBuffer{}, false
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return models.AudioBuffer{}, false
	}
	defer file.Close()

	out, err := os.CreateTemp(s.config.TempDir, "upload_*"+filepath.Ext(header.Filename))
	if err != nil {
		s.log.Errorf("Failed to create temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return models.AudioBuffer{}, false
	}
	defer os.Remove(out.Name())
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		s.log.Errorf("Failed to save file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return models.AudioBuffer{}, false
	}
	out.Close()

	buf, err := audio.Load(ctx, out.Name(), s.config.SampleRate)
	if err != nil {
		s.log.Warnf("Failed to decode %s: %v", header.Filename, err)
		s.respondError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("Failed to decode audio: %v", err))
		return models.AudioBuffer{}, false
	}
	return buf, true
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "AcousticVerify API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":            "GET /health",
			"metrics":           "GET /api/health/metrics",
			"listRegistrations": "GET /api/registrations",
			"register":          "POST /api/registrations",
			"getRegistration":   "GET /api/registrations/{id}",
			"revoke":            "DELETE /api/registrations/{id}",
			"verify":            "POST /api/verify",
			"digest":            "POST /api/digest",
			"exact":             "POST /api/exact",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMetrics handles GET /api/health/metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	regs, err := s.service.ListRegistrations(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list registrations: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "Failed to retrieve metrics")
		return
	}

	embeddings := 0
	for _, reg := range regs {
		embeddings += reg.EmbeddedSegments
	}
	s.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:            "healthy",
		StorageDriver:     s.config.StorageDriver,
		StoragePath:       s.config.StoragePath,
		RegistrationCount: len(regs),
		EmbeddingCount:    embeddings,
		SampleRate:        s.config.SampleRate,
	})
}

// handleListRegistrations handles GET /api/registrations
func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.service.ListRegistrations(r.Context())
	if err != nil {
		s.respondEngineError(w, "list registrations", err)
		return
	}

	dtos := make([]RegistrationDTO, len(regs))
	for i, reg := range regs {
		dtos[i] = registrationDTO(reg)
	}
	s.respondJSON(w, http.StatusOK, ListRegistrationsResponse{
		Registrations: dtos,
		Count:         len(dtos),
	})
}

// handleGetRegistration handles GET /api/registrations/{id}
func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg, err := s.service.GetRegistration(r.Context(), id)
	if err != nil {
		s.respondEngineError(w, "get registration "+id, err)
		return
	}
	s.respondJSON(w, http.StatusOK, registrationDTO(*reg))
}

// handleRevoke handles DELETE /api/registrations/{id}
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.Revoke(r.Context(), id); err != nil {
		s.respondEngineError(w, "revoke "+id, err)
		return
	}
	s.respondJSON(w, http.StatusOK, RevokeResponse{
		Message:       "Registration revoked",
		FingerprintID: id,
	})
}

// handleRegister handles POST /api/registrations (multipart file upload)
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	buf, ok := s.readUpload(ctx, w, r, maxRegisterUpload)
	if !ok {
		return
	}

	var opts []acousticverify.RegisterOption
	if label := r.FormValue("label"); label != "" {
		opts = append(opts, acousticverify.WithLabel(label))
	}
	if id := r.FormValue("fingerprint_id"); id != "" {
		opts = append(opts, acousticverify.WithFingerprintID(id))
	}

	res, err := s.service.RegisterFingerprint(ctx, buf, opts...)
	if err != nil {
		s.respondEngineError(w, "register", err)
		return
	}

	msg := "Registered"
	if res.Replaced {
		msg = "Registration replaced"
	}
	s.respondJSON(w, http.StatusCreated, RegisterResponse{Message: msg, Result: res})
}

// handleVerify handles POST /api/verify (multipart file upload)
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	buf, ok := s.readUpload(ctx, w, r, maxQueryUpload)
	if !ok {
		return
	}
	id := r.FormValue("fingerprint_id")

	verdict, err := s.service.Verify(ctx, buf, id)
	if err != nil {
		s.respondEngineError(w, "verify against "+id, err)
		return
	}

	status := http.StatusOK
	if verdict.Status == models.StatusStoreUnavailable {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, verdict)
}

// handleDigest handles POST /api/digest (multipart file upload)
func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	buf, ok := s.readUpload(ctx, w, r, maxQueryUpload)
	if !ok {
		return
	}
	set, err := s.service.Fingerprint(ctx, buf)
	if err != nil {
		s.respondEngineError(w, "fingerprint", err)
		return
	}
	s.respondJSON(w, http.StatusOK, DigestResponse{
		Whole:    set.Whole.Digest,
		Segments: set.Digests(),
	})
}

// handleFindExact handles POST /api/exact (multipart file upload)
func (s *Server) handleFindExact(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	buf, ok := s.readUpload(ctx, w, r, maxQueryUpload)
	if !ok {
		return
	}
	regs, err := s.service.FindExact(ctx, buf)
	if err != nil {
		s.respondEngineError(w, "find exact copies", err)
		return
	}

	dtos := make([]RegistrationDTO, len(regs))
	for i, reg := range regs {
		dtos[i] = registrationDTO(reg)
	}
	s.respondJSON(w, http.StatusOK, ListRegistrationsResponse{
		Registrations: dtos,
		Count:         len(dtos),
	})
}
