package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
)

// stubReader is an in-memory experiment reader with switchable results.
type stubReader struct {
	mu     sync.Mutex
	exps   []domain.Experiment
	err    error
	remote int // number of backend fetches observed
}

func (s *stubReader) ActiveByProject(_ context.Context, _ int64) ([]domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remote++
	if s.err != nil {
		return nil, s.err
	}
	return s.exps, nil
}

func (s *stubReader) ByID(_ context.Context, id int64) (*domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.exps {
		if s.exps[i].ID == id {
			return &s.exps[i], nil
		}
	}
	return nil, ErrExperimentNotFound
}

func (s *stubReader) set(exps []domain.Experiment, err error) {
	s.mu.Lock()
	s.exps, s.err = exps, err
	s.mu.Unlock()
}

func (s *stubReader) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// fakeClock is an adjustable time source for deterministic expiry tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(reader ExperimentReader, ttl time.Duration) (*ConfigCache, *fakeClock) {
	cache := NewConfigCache(reader, ConfigCacheConfig{TTL: ttl})
	clock := newFakeClock()
	cache.now = clock.Now
	return cache, clock
}

func TestCacheServesWithinTTL(t *testing.T) {
	reader := &stubReader{exps: []domain.Experiment{{ID: 1, Status: domain.ExperimentActive}}}
	cache, clock := newTestCache(reader, time.Minute)

	ctx := context.Background()
	if got := cache.ActiveExperiments(ctx, 5); len(got) != 1 {
		t.Fatalf("first read: got %d experiments, want 1", len(got))
	}

	clock.Advance(59 * time.Second)
	cache.ActiveExperiments(ctx, 5)
	cache.ActiveExperiments(ctx, 5)

	if n := reader.fetches(); n != 1 {
		t.Errorf("expected a single backend fetch within the TTL, got %d", n)
	}
}

func TestCacheRefreshesAfterTTL(t *testing.T) {
	reader := &stubReader{exps: []domain.Experiment{{ID: 1}, {ID: 2}}}
	cache, clock := newTestCache(reader, time.Minute)
	ctx := context.Background()

	cache.ActiveExperiments(ctx, 5)

	// Deactivation in the backing store stays invisible until expiry.
	reader.set([]domain.Experiment{{ID: 1}}, nil)
	clock.Advance(30 * time.Second)
	if got := cache.ActiveExperiments(ctx, 5); len(got) != 2 {
		t.Errorf("within TTL: got %d experiments, want stale 2", len(got))
	}

	clock.Advance(31 * time.Second)
	if got := cache.ActiveExperiments(ctx, 5); len(got) != 1 {
		t.Errorf("after TTL: got %d experiments, want refreshed 1", len(got))
	}
	if n := reader.fetches(); n != 2 {
		t.Errorf("expected 2 backend fetches, got %d", n)
	}
}

func TestCacheSoftFailServesLastKnownGood(t *testing.T) {
	reader := &stubReader{exps: []domain.Experiment{{ID: 1}}}
	cache, clock := newTestCache(reader, time.Minute)
	ctx := context.Background()

	cache.ActiveExperiments(ctx, 5)

	reader.set(nil, errors.New("backend down"))
	clock.Advance(2 * time.Minute)

	if got := cache.ActiveExperiments(ctx, 5); len(got) != 1 {
		t.Errorf("backend failure: got %d experiments, want last known-good 1", len(got))
	}

	// Backend recovers: next expired read picks up fresh data.
	reader.set([]domain.Experiment{{ID: 1}, {ID: 2}}, nil)
	if got := cache.ActiveExperiments(ctx, 5); len(got) != 2 {
		t.Errorf("after recovery: got %d experiments, want 2", len(got))
	}
}

func TestCacheNoSnapshotReturnsEmpty(t *testing.T) {
	reader := &stubReader{err: errors.New("backend down")}
	cache, _ := newTestCache(reader, time.Minute)

	if got := cache.ActiveExperiments(context.Background(), 5); len(got) != 0 {
		t.Errorf("no snapshot + failing backend: got %d experiments, want 0", len(got))
	}
}

func TestCacheIsolatesProjects(t *testing.T) {
	reader := &stubReader{exps: []domain.Experiment{{ID: 1}}}
	cache, _ := newTestCache(reader, time.Minute)
	ctx := context.Background()

	cache.ActiveExperiments(ctx, 1)
	cache.ActiveExperiments(ctx, 2)

	if n := reader.fetches(); n != 2 {
		t.Errorf("distinct projects must fetch separately, got %d fetches", n)
	}
}
