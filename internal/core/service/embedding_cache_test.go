package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/99minutos/access-control/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// vec returns a full-dimension vector whose first component is x.
func vec(x float64) domain.Vector {
	v := make(domain.Vector, domain.EmbeddingDimension)
	v[0] = x
	return v
}

type stubEmbeddingSource struct {
	mu      sync.Mutex
	records []domain.EmbeddingRecord
	err     error
	calls   int
}

func (s *stubEmbeddingSource) ListAllEmbeddings(_ context.Context) ([]domain.EmbeddingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.EmbeddingRecord(nil), s.records...), nil
}

func (s *stubEmbeddingSource) set(records []domain.EmbeddingRecord, err error) {
	s.mu.Lock()
	s.records, s.err = records, err
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestEmbeddingCache_StartsEmpty(t *testing.T) {
	c := NewEmbeddingCache(&stubEmbeddingSource{}, zerolog.Nop())
	if c.Current() == nil {
		t.Fatal("Current returned nil before first rebuild")
	}
	if c.Current().Len() != 0 {
		t.Fatalf("expected empty snapshot, got %d", c.Current().Len())
	}
}

func TestEmbeddingCache_Rebuild_PublishesInOrder(t *testing.T) {
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{
		{UserID: "1", UserName: "alice", Vector: vec(0.1)},
		{UserID: "2", UserName: "bob", Vector: vec(0.2)},
	}}
	c := NewEmbeddingCache(src, zerolog.Nop())

	snap, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild returned error: %v", err)
	}
	if snap != c.Current() {
		t.Fatal("Rebuild did not publish the returned snapshot")
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 embeddings, got %d", snap.Len())
	}
	id, name, v := snap.Entry(1)
	if id != "2" || name != "bob" || v[0] != 0.2 {
		t.Fatalf("unexpected entry 1: %s %s %v", id, name, v[0])
	}
	if snap.BuiltAt().IsZero() {
		t.Fatal("expected build time to be set")
	}
}

func TestEmbeddingCache_Rebuild_DoesNotAliasSource(t *testing.T) {
	v := vec(0.5)
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{{UserID: "1", UserName: "a", Vector: v}}}
	c := NewEmbeddingCache(src, zerolog.Nop())
	if _, err := c.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	v[0] = 99
	if _, _, got := c.Current().Entry(0); got[0] != 0.5 {
		t.Fatalf("snapshot changed with source memory: %v", got[0])
	}
}

func TestEmbeddingCache_Rebuild_StoreErrorKeepsPrevious(t *testing.T) {
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{{UserID: "1", UserName: "a", Vector: vec(0)}}}
	c := NewEmbeddingCache(src, zerolog.Nop())
	first, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	boom := errors.New("db down")
	src.set(nil, boom)
	snap, err := c.Rebuild(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if snap != first || c.Current() != first {
		t.Fatal("previous snapshot was not kept after a failed rebuild")
	}
}

func TestEmbeddingCache_Rebuild_InconsistentPublishesEmpty(t *testing.T) {
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{{UserID: "1", UserName: "a", Vector: vec(0)}}}
	c := NewEmbeddingCache(src, zerolog.Nop())
	if _, err := c.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	src.set([]domain.EmbeddingRecord{
		{UserID: "1", UserName: "a", Vector: vec(0)},
		{UserID: "2", UserName: "b", Vector: domain.Vector{1, 2, 3}},
	}, nil)
	snap, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("inconsistent rows must not return an error, got %v", err)
	}
	if snap.Len() != 0 || c.Current().Len() != 0 {
		t.Fatalf("expected empty snapshot, got %d", c.Current().Len())
	}
}

func TestEmbeddingCache_Rebuild_MixedDimensionsPublishesEmpty(t *testing.T) {
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{
		{UserID: "1", UserName: "a", Vector: make(domain.Vector, 128)},
		{UserID: "2", UserName: "b", Vector: make(domain.Vector, 64)},
	}}
	c := NewEmbeddingCache(src, zerolog.Nop())

	snap, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if snap.Len() != 0 {
		t.Fatalf("128 and 64 value rows must not be cached together, got %d rows", snap.Len())
	}
}

func TestEmbeddingCache_Rebuild_Idempotent(t *testing.T) {
	src := &stubEmbeddingSource{records: []domain.EmbeddingRecord{
		{UserID: "1", UserName: "alice", Vector: vec(0.1)},
		{UserID: "1", UserName: "alice", Vector: vec(0.15)},
		{UserID: "2", UserName: "bob", Vector: vec(0.9)},
	}}
	c := NewEmbeddingCache(src, zerolog.Nop())

	first, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("first Rebuild: %v", err)
	}
	second, err := c.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	if first.Len() != second.Len() {
		t.Fatalf("row count changed: %d then %d", first.Len(), second.Len())
	}
	for i := 0; i < first.Len(); i++ {
		id1, name1, v1 := first.Entry(i)
		id2, name2, v2 := second.Entry(i)
		if id1 != id2 || name1 != name2 || len(v1) != len(v2) {
			t.Fatalf("row %d differs: %s/%s vs %s/%s", i, id1, name1, id2, name2)
		}
		for j := range v1 {
			if v1[j] != v2[j] {
				t.Fatalf("row %d value %d differs: %v vs %v", i, j, v1[j], v2[j])
			}
		}
	}
}

func TestEmbeddingCache_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	small := []domain.EmbeddingRecord{{UserID: "1", UserName: "a", Vector: vec(0)}}
	large := []domain.EmbeddingRecord{
		{UserID: "1", UserName: "a", Vector: vec(0)},
		{UserID: "2", UserName: "b", Vector: vec(1)},
		{UserID: "3", UserName: "c", Vector: vec(2)},
	}
	src := &stubEmbeddingSource{records: small}
	c := NewEmbeddingCache(src, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				src.set(large, nil)
			} else {
				src.set(small, nil)
			}
			_, _ = c.Rebuild(context.Background())
		}(i)
		go func() {
			defer wg.Done()
			snap := c.Current()
			if n := snap.Len(); n != 0 && n != 1 && n != 3 {
				t.Errorf("reader saw partial snapshot of %d rows", n)
			}
			for j := 0; j < snap.Len(); j++ {
				if _, _, v := snap.Entry(j); len(v) != domain.EmbeddingDimension {
					t.Errorf("row %d has %d values", j, len(v))
				}
			}
		}()
	}
	wg.Wait()
}

func TestNewSnapshot_RejectsWrongDimension(t *testing.T) {
	_, err := NewSnapshot([]domain.EmbeddingRecord{{Vector: domain.Vector{1}}}, time.Time{})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}
