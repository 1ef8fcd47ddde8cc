package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
)

const lastTokenKey = "access:last_token"

// TokenTracker keeps the last scanned UID in a single Redis hash so every
// replica sees the same swipe. uid and timestamp are written by one HSET and
// can never be read torn.
type TokenTracker struct {
	client *redis.Client
	window time.Duration
	now    func() time.Time
}

var _ ports.TokenTracker = (*TokenTracker)(nil)

// NewTokenTracker wraps client. window is the freshness window.
func NewTokenTracker(client *redis.Client, window time.Duration) *TokenTracker {
	return &TokenTracker{client: client, window: window, now: time.Now}
}

func (t *TokenTracker) Observe(ctx context.Context, uid string) error {
	err := t.client.HSet(ctx, lastTokenKey,
		"uid", uid,
		"ts", strconv.FormatInt(t.now().UnixNano(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("observe token: %w", err)
	}
	return nil
}

func (t *TokenTracker) Peek(ctx context.Context) (domain.LastSeenToken, error) {
	fields, err := t.client.HGetAll(ctx, lastTokenKey).Result()
	if err != nil {
		return domain.LastSeenToken{}, fmt.Errorf("peek token: %w", err)
	}
	uid, seenAt := decodeToken(fields)
	return domain.PeekToken(uid, seenAt, t.now(), t.window), nil
}

func (t *TokenTracker) Clear(ctx context.Context) error {
	if err := t.client.Del(ctx, lastTokenKey).Err(); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	return nil
}

// decodeToken reads the stored hash. A malformed timestamp reads as empty.
func decodeToken(fields map[string]string) (string, time.Time) {
	uid := fields["uid"]
	ns, err := strconv.ParseInt(fields["ts"], 10, 64)
	if uid == "" || err != nil {
		return "", time.Time{}
	}
	return uid, time.Unix(0, ns)
}
