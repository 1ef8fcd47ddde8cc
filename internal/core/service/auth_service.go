package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/99minutos/access-control/internal/core/domain"
)

const defaultTokenTTL = 12 * time.Hour

// AdminClaims is the payload of an admin bearer token.
type AdminClaims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthService authenticates the single configured administrator.
type AdminAuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    string
	tokenTTL     time.Duration
	now          func() time.Time
}

// NewAdminAuthService hashes password once so it is never kept in clear.
func NewAdminAuthService(username, password, jwtSecret string, tokenTTL time.Duration) (*AdminAuthService, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin password: %w", err)
	}
	return &AdminAuthService{
		username:     username,
		passwordHash: hash,
		jwtSecret:    jwtSecret,
		tokenTTL:     tokenTTL,
		now:          time.Now,
	}, nil
}

func (s *AdminAuthService) Login(_ context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", domain.ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// always run bcrypt so an unknown user costs the same as a bad password
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", domain.ErrInvalidCredentials
	}
	return s.generateToken()
}

func (s *AdminAuthService) generateToken() (string, error) {
	now := s.now()
	claims := AdminClaims{
		Username: s.username,
		Role:     domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.jwtSecret))
}

// ParseAdminToken verifies an HS256 token signed with secret and returns
// the caller it names. Tokens without an expiry are rejected.
func ParseAdminToken(token, secret string) (domain.Principal, error) {
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Username == "" {
		return domain.Principal{}, fmt.Errorf("%w: no username", domain.ErrInvalidToken)
	}
	return domain.Principal{Username: claims.Username, Role: claims.Role}, nil
}
