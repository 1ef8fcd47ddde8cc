package service

import (
	"context"
	"fmt"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
	statsRecent     = 20
)

type dashboardService struct {
	users ports.EnrollmentRepository
	logs  ports.AccessLogRepository
	cache SnapshotSource
}

func NewDashboardService(users ports.EnrollmentRepository, logs ports.AccessLogRepository, cache SnapshotSource) ports.DashboardService {
	return &dashboardService{users: users, logs: logs, cache: cache}
}

func (s *dashboardService) Stats(ctx context.Context) (*domain.Stats, error) {
	users, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	embeddings, err := s.users.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	logs, err := s.logs.CountLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}
	recent, err := s.logs.RecentLogs(ctx, statsRecent)
	if err != nil {
		return nil, fmt.Errorf("recent logs: %w", err)
	}
	return &domain.Stats{
		Users:      users,
		Embeddings: embeddings,
		Logs:       logs,
		Cached:     s.cache.Current().Len(),
		Recent:     recent,
	}, nil
}

// RecentLogs clamps limit to (0, 1000]; zero or negative selects 200.
func (s *dashboardService) RecentLogs(ctx context.Context, limit int) ([]domain.AccessLogEntry, error) {
	switch {
	case limit <= 0:
		limit = defaultLogLimit
	case limit > maxLogLimit:
		limit = maxLogLimit
	}
	return s.logs.RecentLogs(ctx, limit)
}
