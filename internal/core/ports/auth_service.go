package ports

import "context"

// AdminAuthService authenticates the administrator and issues bearer tokens.
type AdminAuthService interface {
	Login(ctx context.Context, username, password string) (string, error)
}
