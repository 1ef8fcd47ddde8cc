package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// EmbeddingSource is the read side the embedding cache rebuilds from.
type EmbeddingSource interface {
	// ListAllEmbeddings returns every (user, embedding) pair ordered by
	// ascending embedding row id.
	ListAllEmbeddings(ctx context.Context) ([]domain.EmbeddingRecord, error)
}

// EnrollmentRepository persists users and their embeddings.
type EnrollmentRepository interface {
	EmbeddingSource

	// InsertUser creates the user or returns the id of the existing user
	// with the same name.
	InsertUser(ctx context.Context, name string) (string, error)
	InsertEmbedding(ctx context.Context, userID string, vector domain.Vector, imageRef string) error
	// DeleteUser removes the user and its embeddings, and unbinds its
	// credentials. Returns domain.ErrUserNotFound for unknown ids.
	DeleteUser(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]domain.UserSummary, error)
	CountUsers(ctx context.Context) (int64, error)
	CountEmbeddings(ctx context.Context) (int64, error)
}

// CredentialRepository persists token UIDs and their user bindings.
// UIDs are passed already normalised.
type CredentialRepository interface {
	LookupCredential(ctx context.Context, uid string) (domain.CredentialLookup, error)
	// UpsertCredentialBinding binds uid to userID, replacing any previous
	// binding. Returns domain.ErrUserNotFound for unknown users.
	UpsertCredentialBinding(ctx context.Context, uid, userID string) error
	DeleteCredential(ctx context.Context, id string) error
	ListCredentials(ctx context.Context) ([]domain.Credential, error)
}
