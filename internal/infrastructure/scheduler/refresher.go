// Package scheduler drives every embedding cache rebuild: the one at
// startup, the periodic one, and the ones requested after admin mutations.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/service"
)

// DefaultInterval is the periodic refresh cadence.
const DefaultInterval = 300 * time.Second

// Rebuilder is the cache being refreshed.
type Rebuilder interface {
	Rebuild(ctx context.Context) (*service.Snapshot, error)
}

// CacheRefresher owns the cron entry that periodically rebuilds the cache.
type CacheRefresher struct {
	cache    Rebuilder
	interval time.Duration
	cron     *cron.Cron
	log      zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entry   cron.EntryID
	started bool
}

// NewCacheRefresher returns a stopped refresher. A non-positive interval
// selects DefaultInterval.
func NewCacheRefresher(cache Rebuilder, interval time.Duration, log zerolog.Logger) *CacheRefresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &CacheRefresher{
		cache:    cache,
		interval: interval,
		// a slow rebuild must not pile up ticks behind it
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
	}
}

// Start rebuilds once synchronously and then schedules the periodic
// refresh. A failed initial rebuild is logged; the service keeps serving the
// empty snapshot until a later refresh succeeds. ctx bounds the scheduled
// rebuilds.
func (r *CacheRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	if snap, err := r.cache.Rebuild(ctx); err != nil {
		r.log.Warn().Err(err).Msg("initial cache load failed")
	} else {
		r.log.Info().Int("embeddings", snap.Len()).Msg("initial cache loaded")
	}

	r.ctx = ctx
	spec := fmt.Sprintf("@every %s", r.interval)
	id, err := r.cron.AddFunc(spec, r.tick)
	if err != nil {
		return fmt.Errorf("schedule cache refresh %q: %w", spec, err)
	}
	r.entry = id
	r.cron.Start()
	r.started = true

	r.log.Info().Dur("interval", r.interval).Msg("cache refresher started")
	return nil
}

// Stop removes the schedule and waits for a running rebuild to finish.
func (r *CacheRefresher) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	entry := r.entry
	r.mu.Unlock()

	<-r.cron.Stop().Done()
	r.cron.Remove(entry)
	r.log.Info().Msg("cache refresher stopped")
}

// Refresh rebuilds right away. Admin mutations call it after commit so the
// change is visible to the next request.
func (r *CacheRefresher) Refresh(ctx context.Context) error {
	_, err := r.cache.Rebuild(ctx)
	return err
}

func (r *CacheRefresher) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := r.cache.Rebuild(ctx); err != nil {
		r.log.Warn().Err(err).Msg("scheduled cache refresh failed")
	}
}
