package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrEmptyUID           = errors.New("credential uid is empty")
)

// Credential is a scanned token UID, optionally bound to a user.
type Credential struct {
	ID        string    `json:"id"`
	UID       string    `json:"uid"`
	UserID    string    `json:"user_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CredentialLookup is the store's answer for a single UID. UserID is empty
// when the credential exists but is not bound to anyone.
type CredentialLookup struct {
	Exists   bool
	UserID   string
	UserName string
}

// Bound reports whether the credential resolves to a user.
func (l CredentialLookup) Bound() bool {
	return l.Exists && l.UserID != ""
}

// NormalizeUID trims and upper-cases a token UID.
func NormalizeUID(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}

// LastSeenToken is the tracker's view of the most recent scan.
type LastSeenToken struct {
	UID        string
	ObservedAt time.Time
	Fresh      bool
	Age        time.Duration
}

// PeekToken builds a LastSeenToken, computing freshness against window.
// An empty uid is never fresh.
func PeekToken(uid string, observedAt, now time.Time, window time.Duration) LastSeenToken {
	if uid == "" {
		return LastSeenToken{}
	}
	age := now.Sub(observedAt)
	return LastSeenToken{
		UID:        uid,
		ObservedAt: observedAt,
		Fresh:      age <= window,
		Age:        age,
	}
}
