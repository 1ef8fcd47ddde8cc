package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// EnrollImage is an uploaded enrollment photo.
type EnrollImage struct {
	Filename string
	Data     []byte
}

// EnrollInput carries one enrollment request. Images and Vectors may both be
// empty, in which case only the user (and optional credential) is created.
type EnrollInput struct {
	Name          string
	Images        []EnrollImage
	Vectors       []domain.Vector
	CredentialUID string
}

// EnrollResult summarises what an enrollment stored.
type EnrollResult struct {
	UserID         string `json:"user_id"`
	Name           string `json:"name"`
	Embeddings     int    `json:"embeddings"`
	SkippedImages  int    `json:"skipped_images"`
	CredentialUID  string `json:"credential_uid,omitempty"`
	CacheRefreshed bool   `json:"cache_refreshed"`
}

// MutationResult is returned by mutations that trigger a cache refresh.
type MutationResult struct {
	CacheRefreshed bool `json:"cache_refreshed"`
}

// EnrollmentService implements the administrative mutations.
type EnrollmentService interface {
	EnrollUser(ctx context.Context, in EnrollInput) (*EnrollResult, error)
	DeleteUser(ctx context.Context, userID string) (*MutationResult, error)
	BindCredential(ctx context.Context, uid, userID string) error
	DeleteCredential(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]domain.UserSummary, error)
	ListCredentials(ctx context.Context) ([]domain.Credential, error)
}

// DashboardService serves the admin read views.
type DashboardService interface {
	Stats(ctx context.Context) (*domain.Stats, error)
	RecentLogs(ctx context.Context, limit int) ([]domain.AccessLogEntry, error)
}

// CacheRefresher rebuilds the embedding cache on demand.
type CacheRefresher interface {
	Refresh(ctx context.Context) error
}
