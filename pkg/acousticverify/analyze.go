package acousticverify

import (
	"context"
	"fmt"

	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/audio"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/fingerprint"
	"github.com/himanishpuri/AcousticVerify/pkg/acousticverify/segment"
	"github.com/himanishpuri/AcousticVerify/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Fingerprint computes perceptual fingerprints and digests for every
// perceptual segment of buf and for the whole buffer. Nothing is stored.
func (s *verificationService) Fingerprint(ctx context.Context, buf models.AudioBuffer) (*FingerprintSet, error) {
	if buf.Empty() {
		return nil, ErrEmptyAudio
	}

	segs := s.perceptual.Split(buf)
	out := &FingerprintSet{Segments: make([]models.SegmentFingerprint, len(segs))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	g.Go(func() error {
		whole, _ := segment.Whole(buf)
		fp, err := s.fingerprintSegment(gctx, whole)
		out.Whole = fp
		return err
	})
	for i, seg := range segs {
		g.Go(func() error {
			fp, err := s.fingerprintSegment(gctx, seg)
			out.Segments[i] = fp
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fingerprintSegment digests the segment's own samples and fingerprints them
// at the extractor's sample rate.
func (s *verificationService) fingerprintSegment(ctx context.Context, seg models.Segment) (models.SegmentFingerprint, error) {
	if err := ctx.Err(); err != nil {
		return models.SegmentFingerprint{}, err
	}

	samples := seg.Samples
	rate := s.extractor.Config().SampleRate
	if seg.SampleRate != rate {
		resampled, err := audio.Resample(seg.Samples, seg.SampleRate, rate)
		if err != nil {
			return models.SegmentFingerprint{}, fmt.Errorf("segment %d: %w", seg.Index, err)
		}
		samples = resampled
	}

	fp, err := s.extractor.Fingerprint(samples, rate)
	if err != nil {
		return models.SegmentFingerprint{}, fmt.Errorf("segment %d: %w", seg.Index, err)
	}

	return models.SegmentFingerprint{
		SegmentIndex: seg.Index,
		StartTime:    seg.StartTime,
		EndTime:      seg.EndTime,
		Fingerprint:  fp,
		Digest:       fingerprint.Digest(seg.Samples),
	}, nil
}

// embedSegments embeds every embedding-length window of buf. Segments whose
// embedding fails are logged and skipped; only context cancellation aborts.
// It returns the records in segment order and the number of windows tried.
func (s *verificationService) embedSegments(ctx context.Context, buf models.AudioBuffer) ([]models.EmbeddingRecord, int, error) {
	segs := s.embedding.Split(buf)
	results := make([]*models.EmbeddingRecord, len(segs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, seg := range segs {
		g.Go(func() error {
			vec, err := s.adapter.Embed(gctx, seg)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warnf("Skipping segment %d [%.1fs-%.1fs]: %v", seg.Index, seg.StartTime, seg.EndTime, err)
				return nil
			}
			results[i] = &models.EmbeddingRecord{
				SegmentIndex: seg.Index,
				StartTime:    seg.StartTime,
				EndTime:      seg.EndTime,
				Vector:       vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(segs), err
	}

	records := make([]models.EmbeddingRecord, 0, len(segs))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, len(segs), nil
}
