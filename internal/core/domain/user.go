package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is the authorization level carried by an admin token.
type Role string

const RoleAdmin Role = "admin"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidName        = errors.New("user name is required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Principal is the authenticated caller of an admin request.
type Principal struct {
	Username string
	Role     Role
}

// HasRole reports whether p holds one of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// User is an enrolled identity. Names are unique.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the admin listing view of a user.
type UserSummary struct {
	User
	EmbeddingCount  int `json:"embedding_count"`
	CredentialCount int `json:"credential_count"`
}

// NormalizeName trims surrounding whitespace from a user name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}
