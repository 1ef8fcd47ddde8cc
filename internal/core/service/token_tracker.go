package service

import (
	"context"
	"sync"
	"time"

	"github.com/99minutos/access-control/internal/core/domain"
)

// DefaultFreshWindow is how long a scanned UID stays eligible for auto-fill.
const DefaultFreshWindow = 20 * time.Second

// MemoryTokenTracker holds the last scanned UID in a single mutex-guarded
// slot, so uid and timestamp are always read together.
type MemoryTokenTracker struct {
	mu     sync.Mutex
	uid    string
	seenAt time.Time
	window time.Duration
	now    func() time.Time
}

// NewMemoryTokenTracker returns an empty tracker. A non-positive window
// selects DefaultFreshWindow.
func NewMemoryTokenTracker(window time.Duration) *MemoryTokenTracker {
	if window <= 0 {
		window = DefaultFreshWindow
	}
	return &MemoryTokenTracker{window: window, now: time.Now}
}

// Observe overwrites the slot unconditionally.
func (t *MemoryTokenTracker) Observe(_ context.Context, uid string) error {
	now := t.now()
	t.mu.Lock()
	t.uid = uid
	t.seenAt = now
	t.mu.Unlock()
	return nil
}

// Peek reports the stored uid and whether it is still fresh. Stale uids are
// returned as well; the caller decides what to do with them.
func (t *MemoryTokenTracker) Peek(_ context.Context) (domain.LastSeenToken, error) {
	t.mu.Lock()
	uid, seenAt := t.uid, t.seenAt
	t.mu.Unlock()
	return domain.PeekToken(uid, seenAt, t.now(), t.window), nil
}

// Clear resets the slot.
func (t *MemoryTokenTracker) Clear(_ context.Context) error {
	t.mu.Lock()
	t.uid = ""
	t.seenAt = time.Time{}
	t.mu.Unlock()
	return nil
}
