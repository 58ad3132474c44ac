package acousticverify

import (
	"context"
	"errors"
	"fmt"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Verify checks buf against the registration fingerprintID.
//
// Every query segment is embedded and searched against the whole index; a
// segment matches when one of its nearest neighbors above the similarity
// threshold belongs to fingerprintID. Segments that fail to embed or to be
// searched are left out of TotalSegments. Empty input and zero usable segments yield an
// inconclusive verdict; a store that stays unreachable yields
// store_unavailable. Neither is ever reported as tampered.
//
// The returned error is reserved for caller mistakes (empty or unknown id)
// and context cancellation.
func (s *verificationService) Verify(ctx context.Context, buf models.AudioBuffer, fingerprintID string) (*models.VerificationVerdict, error) {
	if fingerprintID == "" {
		return nil, ErrInvalidFingerprintID
	}
	v := &models.VerificationVerdict{
		FingerprintID:     fingerprintID,
		PerSegmentMatches: []models.SegmentMatch{},
	}

	reg, err := s.GetRegistration(ctx, fingerprintID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fingerprintID)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		return s.storeUnavailable(v, err), nil
	}

	if buf.Empty() {
		return s.inconclusive(v, "query audio is empty"), nil
	}

	if err := s.compareWhole(ctx, v, buf, reg); err != nil {
		return nil, err
	}

	records, total, err := s.embedSegments(ctx, buf)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		reason := "query produced no embedding segments"
		if total > 0 {
			reason = fmt.Sprintf("none of %d query segments could be embedded", total)
		}
		return s.inconclusive(v, reason), nil
	}

	matches, err := s.matchSegments(ctx, records, fingerprintID)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrStoreUnavailable):
		return s.storeUnavailable(v, err), nil
	case err != nil:
		return s.inconclusive(v, err.Error()), nil
	}

	v.PerSegmentMatches = matches
	v.TotalSegments = len(matches)
	for _, m := range matches {
		if m.Matched {
			v.MatchedSegments++
		}
	}
	classify(v, s.config.Policy)

	s.log.Infof("Verified against %s: %s (%d/%d segments, %.1f%%)",
		fingerprintID, v.Status, v.MatchedSegments, v.TotalSegments, v.MatchPercentage)
	return v, nil
}

// compareWhole sets the exact-match flag and the whole-file perceptual
// similarity. Fingerprints produced under another configuration are not
// scored; the verdict's reason says so instead.
func (s *verificationService) compareWhole(ctx context.Context, v *models.VerificationVerdict, buf models.AudioBuffer, reg *models.Registration) error {
	whole, _ := segment.Whole(buf)
	query, err := s.fingerprintSegment(ctx, whole)
	if err != nil {
		return err
	}

	v.IsExactMatch = query.Digest.SHA256 == reg.WholeDigest.SHA256

	sim, err := fingerprint.Similarity(query.Fingerprint, reg.WholeFingerprint.Fingerprint)
	if err != nil {
		s.log.Warnf("Perceptual comparison with %s skipped: %v", reg.FingerprintID, err)
		v.Reason = fmt.Sprintf("perceptual fingerprints not comparable: %v", err)
		return nil
	}
	v.PerceptualSimilarity = &sim
	return nil
}

// matchSegments searches every query embedding concurrently. A failed search
// drops only its own segment. The returned error is set when no search
// succeeded, and wraps ErrStoreUnavailable only if every failure did.
func (s *verificationService) matchSegments(ctx context.Context, records []models.EmbeddingRecord, target string) ([]models.SegmentMatch, error) {
	results := make([]models.SegmentMatch, len(records))
	errs := make([]error, len(records))
	policy := s.config.Policy

	var g errgroup.Group
	g.SetLimit(s.config.Concurrency)
	for i, r := range records {
		g.Go(func() error {
			neighbors, err := s.similarity.Query(ctx, r.Vector, policy.TopK, policy.SimilarityThreshold)
			if err != nil {
				errs[i] = fmt.Errorf("segment %d: %w", r.SegmentIndex, err)
				return nil
			}
			results[i] = segmentMatch(r, neighbors, target)
			return nil
		})
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]models.SegmentMatch, 0, len(records))
	var firstErr, rejected error
	for i, err := range errs {
		if err == nil {
			matches = append(matches, results[i])
			continue
		}
		s.log.Warnf("Search failed, %v", err)
		if firstErr == nil {
			firstErr = err
		}
		if rejected == nil && !errors.Is(err, ErrStoreUnavailable) {
			rejected = err
		}
	}
	if rejected != nil {
		firstErr = rejected
	}
	if len(matches) > 0 || firstErr == nil {
		return matches, nil
	}
	return nil, fmt.Errorf("all %d segment searches failed: %w", len(records), firstErr)
}

func segmentMatch(r models.EmbeddingRecord, neighbors []models.Neighbor, target string) models.SegmentMatch {
	m := models.SegmentMatch{
		SegmentIndex: r.SegmentIndex,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		TargetIndex:  -1,
		Neighbors:    neighbors,
	}
	// neighbors are sorted by descending similarity
	for _, n := range neighbors {
		if n.FingerprintID == target {
			m.Matched = true
			m.Similarity = n.Similarity
			m.TargetIndex = n.SegmentIndex
			break
		}
	}
	return m
}

// classify applies the thresholds in priority order: matched, partial, tampered.
func classify(v *models.VerificationVerdict, p Policy) {
	if v.TotalSegments == 0 {
		v.Status = models.StatusInconclusive
		return
	}
	v.MatchPercentage = 100 * float64(v.MatchedSegments) / float64(v.TotalSegments)

	switch {
	case v.MatchPercentage >= p.MatchedPercent:
		v.Status = models.StatusMatched
		v.Matched = true
	case v.MatchPercentage >= p.PartialPercent:
		v.Status = models.StatusPartial
		v.IsPartialMatch = true
	default:
		v.Status = models.StatusTampered
		v.IsTampered = true
	}
}

func (s *verificationService) inconclusive(v *models.VerificationVerdict, reason string) *models.VerificationVerdict {
	v.Status = models.StatusInconclusive
	v.Reason = reason
	s.log.Warnf("Verification of %s inconclusive: %s", v.FingerprintID, reason)
	return v
}

func (s *verificationService) storeUnavailable(v *models.VerificationVerdict, err error) *models.VerificationVerdict {
	v.Status = models.StatusStoreUnavailable
	v.Matched = false
	v.IsPartialMatch = false
	v.IsTampered = false
	v.MatchedSegments = 0
	v.TotalSegments = 0
	v.MatchPercentage = 0
	v.PerSegmentMatches = []models.SegmentMatch{}
	v.Reason = fmt.Sprintf("similarity store unavailable: %v", err)
	s.log.Errorf("Verification of %s aborted: %v", v.FingerprintID, err)
	return v
}
