package decision

import (
	"context"
	"sync"
	"time"

	"github.com/ShimantoKabir/ABTestingToolServer/internal/domain"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/distlock"
	"github.com/ShimantoKabir/ABTestingToolServer/internal/pkg/logger"
)

// DefaultCacheTTL bounds how long a project's experiment snapshot is served
// without re-reading the backing store. During the window, newly activated
// or edited experiments are invisible to the decision path — bounded
// staleness traded for hot-path latency, not a bug.
const DefaultCacheTTL = 60 * time.Second

// LockFactory produces a lock guarding one project's backend refresh.
// Optional: the lock only dedupes concurrent fetches across processes and is
// never required for correctness.
type LockFactory func(projectID int64) distlock.DistLock

// ConfigCacheConfig holds tunables for the experiment config cache.
type ConfigCacheConfig struct {
	TTL         time.Duration // zero means DefaultCacheTTL
	RefreshLock LockFactory   // nil disables refresh dedup
}

// ConfigCache is a process-local, read-through cache of active experiment
// snapshots keyed by project. Each serving process keeps its own cache and
// TTL clock; instances may briefly disagree within the staleness bound.
//
// Concurrent refreshes of the same expired key are tolerated: redundant
// fetches waste a backend round trip but never produce wrong answers.
type ConfigCache struct {
	reader  ExperimentReader
	ttl     time.Duration
	newLock LockFactory

	// now is injectable so expiry is testable without real time delays.
	now func() time.Time

	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

type cacheEntry struct {
	experiments []domain.Experiment
	fetchedAt   time.Time
}

// NewConfigCache creates a cache reading through to the given store.
func NewConfigCache(reader ExperimentReader, cfg ConfigCacheConfig) *ConfigCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ConfigCache{
		reader:  reader,
		ttl:     ttl,
		newLock: cfg.RefreshLock,
		now:     time.Now,
		entries: make(map[int64]cacheEntry),
	}
}

// ActiveExperiments returns the project's active experiments, refreshing
// from the backing store when the cached snapshot has expired.
//
// Backend failures soft-fail: the last known-good snapshot is served if one
// exists, an empty set otherwise. A decision request is never failed by a
// cache refresh.
func (c *ConfigCache) ActiveExperiments(ctx context.Context, projectID int64) []domain.Experiment {
	c.mu.RLock()
	cached, ok := c.entries[projectID]
	fresh := ok && c.now().Sub(cached.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return cached.experiments
	}

	// Stale with a usable snapshot: optionally let one process refresh and
	// serve the old snapshot everywhere else. Lock errors degrade to
	// fetching anyway.
	if ok && c.newLock != nil {
		lock := c.newLock(projectID)
		acquired, err := lock.Acquire(ctx)
		if err == nil && !acquired {
			return cached.experiments
		}
		if acquired {
			defer lock.Release(context.Background())
		}
	}

	exps, err := c.reader.ActiveByProject(ctx, projectID)
	if err != nil {
		logger.Warn("experiment cache refresh failed, serving last known snapshot",
			"project_id", projectID, "error", err)
		if ok {
			return cached.experiments
		}
		return nil
	}

	c.mu.Lock()
	c.entries[projectID] = cacheEntry{experiments: exps, fetchedAt: c.now()}
	c.mu.Unlock()
	return exps
}
