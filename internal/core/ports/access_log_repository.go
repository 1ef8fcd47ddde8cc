package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// AccessLogRepository is the append-only audit trail.
type AccessLogRepository interface {
	AppendLogEntry(ctx context.Context, entry *domain.AccessLogEntry) error
	CountLogs(ctx context.Context) (int64, error)
	// RecentLogs returns the newest entries first.
	RecentLogs(ctx context.Context, limit int) ([]domain.AccessLogEntry, error)
}

// Store bundles everything the relational backend provides.
type Store interface {
	EnrollmentRepository
	CredentialRepository
	AccessLogRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
