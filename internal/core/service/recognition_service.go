package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/metrics"
)

// DefaultTolerance is the maximum face distance that still grants access.
const DefaultTolerance = 0.45

// SnapshotSource hands out the currently published cache snapshot.
type SnapshotSource interface {
	Current() *Snapshot
}

// RecognitionConfig tunes the face pipeline.
type RecognitionConfig struct {
	Tolerance    float64
	SaveCaptures bool
}

type recognitionService struct {
	cache    SnapshotSource
	encoder  ports.FaceEncoder
	captures ports.CaptureStore
	audit    ports.AuditRecorder
	cfg      RecognitionConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewRecognitionService returns the face decision pipeline. captures may be
// nil, in which case frames are never saved.
func NewRecognitionService(
	cache SnapshotSource,
	encoder ports.FaceEncoder,
	captures ports.CaptureStore,
	audit ports.AuditRecorder,
	cfg RecognitionConfig,
	log zerolog.Logger,
) ports.RecognitionService {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &recognitionService{
		cache:    cache,
		encoder:  encoder,
		captures: captures,
		audit:    audit,
		cfg:      cfg,
		now:      time.Now,
		log:      log,
	}
}

func (s *recognitionService) Known() int {
	return s.cache.Current().Len()
}

// Recognize runs decode → extract → match → log on one frame. Once started
// the pipeline runs to completion and logs exactly once.
func (s *recognitionService) Recognize(ctx context.Context, raw []byte) (v domain.Verdict, err error) {
	start := time.Now()
	defer func() {
		outcome := string(v.Outcome)
		if err != nil {
			outcome = "error"
		}
		metrics.RecognitionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	// 1. Empty payload.
	if len(raw) == 0 {
		v = domain.Denied(domain.ReasonEmptyPayload)
		s.finish(ctx, v, "")
		return v, nil
	}

	// 2. Keep the frame as evidence (best effort).
	evidence := s.saveCapture(ctx, raw)

	// 3. Decode.
	if _, _, decErr := image.Decode(bytes.NewReader(raw)); decErr != nil {
		s.log.Debug().Err(fmt.Errorf("%w: %v", domain.ErrUndecodableImage, decErr)).Int("bytes", len(raw)).Msg("rejecting frame")
		v = domain.Denied(domain.ReasonDecodeFailed)
		s.finish(ctx, v, evidence)
		return v, nil
	}

	// 4. Extract probe embeddings.
	ext, err := s.encoder.Extract(ctx, raw)
	if err != nil {
		v = domain.Denied(domain.ReasonServerError)
		s.finish(ctx, v, evidence)
		return v, fmt.Errorf("recognize: extract: %w", err)
	}
	switch {
	case ext.Status == ports.ExtractionDecodeFailed:
		v = domain.Denied(domain.ReasonDecodeFailed)
		s.finish(ctx, v, evidence)
		return v, nil
	case ext.Status == ports.ExtractionNoFace || len(ext.Vectors) == 0:
		v = domain.Denied(domain.ReasonNoFace)
		s.finish(ctx, v, evidence)
		return v, nil
	}

	// 5. Match against the snapshot published right now; a concurrent
	// rebuild cannot change what this request sees.
	res, err := Match(ext.Vectors, s.cache.Current(), s.cfg.Tolerance)
	if err != nil {
		v = domain.Denied(domain.ReasonServerError)
		s.finish(ctx, v, evidence)
		return v, fmt.Errorf("recognize: match: %w", err)
	}

	v = res.Verdict()
	s.finish(ctx, v, evidence)
	return v, nil
}

func (s *recognitionService) finish(ctx context.Context, v domain.Verdict, evidence string) {
	metrics.DecisionsTotal.WithLabelValues(metrics.ChannelFace, string(v.Outcome), string(v.Reason)).Inc()

	label := domain.UnknownSubject
	reason := string(v.Reason)
	switch {
	case v.IsGranted():
		label = v.UserName
		reason = fmt.Sprintf("dist=%.3f", *v.Distance)
	case v.Reason == domain.ReasonNoMatch:
		reason = fmt.Sprintf("no_match_min=%.3f", *v.Distance)
	}
	s.audit.Record(ctx, verdictEntry(v, label, reason, evidence))
}

func (s *recognitionService) saveCapture(ctx context.Context, raw []byte) string {
	if !s.cfg.SaveCaptures || s.captures == nil {
		return ""
	}
	ref, err := s.captures.Save(ctx, CaptureName(s.now(), raw), raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to save capture")
		return ""
	}
	return ref
}

// CaptureName names a saved frame as <YYYYMMDD_HHMMSS>_<sha1 prefix>.jpg.
func CaptureName(at time.Time, raw []byte) string {
	sum := sha1.Sum(raw)
	return fmt.Sprintf("%s_%s.jpg", at.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8])
}
