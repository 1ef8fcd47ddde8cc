package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/metrics"
)

const defaultAuditTimeout = 3 * time.Second

// AuditLogger appends decisions to the access log. It is a side channel:
// a failed write is reported but never changes or delays a verdict beyond
// the configured timeout.
type AuditLogger struct {
	repo    ports.AccessLogRepository
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// NewAuditLogger returns an AuditLogger. A non-positive timeout selects the default.
func NewAuditLogger(repo ports.AccessLogRepository, timeout time.Duration, log zerolog.Logger) *AuditLogger {
	if timeout <= 0 {
		timeout = defaultAuditTimeout
	}
	return &AuditLogger{repo: repo, timeout: timeout, now: time.Now, log: log}
}

// Record stamps and persists entry. The write is detached from ctx
// cancellation so a client that disconnects mid-request still gets its
// decision logged.
func (a *AuditLogger) Record(ctx context.Context, entry domain.AccessLogEntry) {
	entry.Timestamp = a.now().UTC()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.repo.AppendLogEntry(writeCtx, &entry); err != nil {
		metrics.AuditFailuresTotal.Inc()
		a.log.Error().
			Err(err).
			Str("label", entry.Label).
			Str("status", string(entry.Outcome)).
			Msg("failed to append access log entry")
	}
}

// verdictEntry builds the audit entry for a verdict.
func verdictEntry(v domain.Verdict, label, reason, evidence string) domain.AccessLogEntry {
	e := domain.AccessLogEntry{
		Label:   label,
		Outcome: v.Outcome,
	}
	if v.UserID != "" {
		id := v.UserID
		e.UserID = &id
	}
	if reason != "" {
		e.Reason = &reason
	}
	if evidence != "" {
		e.EvidenceRef = &evidence
	}
	return e
}

// RecordRejection logs a request refused before any pipeline ran because
// the device secret was wrong.
func RecordRejection(ctx context.Context, audit ports.AuditRecorder, channel string) {
	RecordDenial(ctx, audit, channel, domain.ReasonInvalidCredential)
}

// RecordDenial logs a denial for reason on channel that no pipeline
// produced, such as a request whose body never arrived.
func RecordDenial(ctx context.Context, audit ports.AuditRecorder, channel string, reason domain.Reason) {
	v := domain.Denied(reason)
	metrics.DecisionsTotal.WithLabelValues(channel, string(v.Outcome), string(v.Reason)).Inc()
	audit.Record(ctx, verdictEntry(v, domain.UnknownSubject, string(v.Reason), ""))
}
