package ports

import (
	"context"

	"github.com/99minutos/access-control/internal/core/domain"
)

// TokenTracker remembers the most recently scanned credential UID.
type TokenTracker interface {
	Observe(ctx context.Context, uid string) error
	Peek(ctx context.Context) (domain.LastSeenToken, error)
	Clear(ctx context.Context) error
}
