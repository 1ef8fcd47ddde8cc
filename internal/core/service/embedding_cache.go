package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
	"github.com/99minutos/access-control/internal/core/ports"
	"github.com/99minutos/access-control/internal/metrics"
)

// Snapshot is an immutable, fully built copy of every enrolled embedding.
// The three slices are parallel and ordered by ascending stored row id.
type Snapshot struct {
	userIDs   []string
	userNames []string
	vectors   []domain.Vector
	builtAt   time.Time
}

// NewSnapshot builds a snapshot from store records. It fails with
// domain.ErrDimensionMismatch if any vector is not EmbeddingDimension long.
func NewSnapshot(records []domain.EmbeddingRecord, builtAt time.Time) (*Snapshot, error) {
	s := &Snapshot{
		userIDs:   make([]string, len(records)),
		userNames: make([]string, len(records)),
		vectors:   make([]domain.Vector, len(records)),
		builtAt:   builtAt,
	}
	for i, r := range records {
		if len(r.Vector) != domain.EmbeddingDimension {
			return nil, fmt.Errorf("%w: row %d has %d values", domain.ErrDimensionMismatch, i, len(r.Vector))
		}
		s.userIDs[i] = r.UserID
		s.userNames[i] = r.UserName
		// copy so the snapshot never aliases caller memory
		s.vectors[i] = append(domain.Vector(nil), r.Vector...)
	}
	return s, nil
}

func emptySnapshot(builtAt time.Time) *Snapshot {
	return &Snapshot{builtAt: builtAt}
}

// Len is the number of embeddings in the snapshot.
func (s *Snapshot) Len() int { return len(s.vectors) }

// BuiltAt is when the snapshot was built.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Entry returns the i-th row. The vector must not be modified.
func (s *Snapshot) Entry(i int) (userID, userName string, vector domain.Vector) {
	return s.userIDs[i], s.userNames[i], s.vectors[i]
}

// EmbeddingCache publishes snapshots of the enrollment store. Readers call
// Current and never block; Rebuild builds off to the side and swaps the
// pointer once the new snapshot is complete.
type EmbeddingCache struct {
	source  ports.EmbeddingSource
	current atomic.Pointer[Snapshot]
	// rebuildMu serialises rebuilds so an older read can never be
	// published over a newer one.
	rebuildMu sync.Mutex
	now       func() time.Time
	log       zerolog.Logger
}

// NewEmbeddingCache returns a cache that serves an empty snapshot until the
// first Rebuild.
func NewEmbeddingCache(source ports.EmbeddingSource, log zerolog.Logger) *EmbeddingCache {
	c := &EmbeddingCache{source: source, now: time.Now, log: log}
	c.current.Store(emptySnapshot(time.Time{}))
	return c
}

// Current returns the latest published snapshot. Never nil.
func (c *EmbeddingCache) Current() *Snapshot {
	return c.current.Load()
}

// Rebuild reads every embedding from the store and publishes a new snapshot.
//
// A store or decode error leaves the previous snapshot published and is
// returned. Rows of inconsistent dimensionality publish an empty snapshot
// and do not return an error.
func (c *EmbeddingCache) Rebuild(ctx context.Context) (*Snapshot, error) {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	start := time.Now()
	defer func() { metrics.CacheRebuildDuration.Observe(time.Since(start).Seconds()) }()

	records, err := c.source.ListAllEmbeddings(ctx)
	if err != nil {
		metrics.CacheRebuildsTotal.WithLabelValues("error").Inc()
		c.log.Error().Err(err).Int("serving", c.Current().Len()).Msg("cache rebuild failed, keeping last snapshot")
		return c.Current(), fmt.Errorf("rebuild cache: %w", err)
	}

	snap, err := NewSnapshot(records, c.now().UTC())
	if err != nil {
		metrics.CacheRebuildsTotal.WithLabelValues("inconsistent").Inc()
		c.log.Warn().Err(err).Int("rows", len(records)).Msg("embeddings inconsistent, resetting cache")
		snap = emptySnapshot(c.now().UTC())
	} else {
		metrics.CacheRebuildsTotal.WithLabelValues("ok").Inc()
	}

	c.current.Store(snap)
	metrics.CacheEmbeddings.Set(float64(snap.Len()))
	c.log.Info().Int("embeddings", snap.Len()).Msg("cache refreshed")
	return snap, nil
}
