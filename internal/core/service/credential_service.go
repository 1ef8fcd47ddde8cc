package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/metrics"
)

type credentialService struct {
	repo    ports.CredentialRepository
	tracker ports.TokenTracker
	audit   ports.AuditRecorder
	log     zerolog.Logger
}

// NewCredentialService returns the credential decision pipeline.
func NewCredentialService(
	repo ports.CredentialRepository,
	tracker ports.TokenTracker,
	audit ports.AuditRecorder,
	log zerolog.Logger,
) ports.CredentialService {
	return &credentialService{repo: repo, tracker: tracker, audit: audit, log: log}
}

// Resolve normalises uid, records it as the last seen token, and resolves it
// to a bound user. Not found and not assigned are distinct denials.
func (s *credentialService) Resolve(ctx context.Context, rawUID string) (domain.Verdict, error) {
	// 1. Normalise; nothing left means there is nothing to look up.
	uid := domain.NormalizeUID(rawUID)
	if uid == "" {
		v := domain.Denied(domain.ReasonEmptyUID)
		s.finish(ctx, v, domain.UnknownSubject)
		return v, nil
	}

	// 2. Every scan feeds the enrollment-by-swipe workflow.
	if err := s.tracker.Observe(ctx, uid); err != nil {
		s.log.Warn().Err(err).Str("uid", uid).Msg("failed to record last seen token")
	}

	// 3. Lookup.
	found, err := s.repo.LookupCredential(ctx, uid)
	if err != nil {
		v := domain.Denied(domain.ReasonServerError)
		s.finish(ctx, v, uid)
		return v, fmt.Errorf("resolve credential: %w", err)
	}

	// 4. Decide and log.
	var v domain.Verdict
	label := uid
	switch {
	case !found.Exists:
		v = domain.Denied(domain.ReasonCardNotFound)
	case !found.Bound():
		v = domain.Denied(domain.ReasonCardNotAssigned)
	default:
		v = domain.Granted(found.UserID, found.UserName, domain.ReasonRFID)
		label = found.UserName
	}
	s.finish(ctx, v, label)
	return v, nil
}

func (s *credentialService) finish(ctx context.Context, v domain.Verdict, label string) {
	metrics.DecisionsTotal.WithLabelValues(metrics.ChannelCredential, string(v.Outcome), string(v.Reason)).Inc()
	s.audit.Record(ctx, verdictEntry(v, label, string(v.Reason), ""))
}
