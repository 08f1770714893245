package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rcookie777/pizza-api/pkg/storage"
)

// DefaultStatsCacheDuration is how long storage stats are reused
const DefaultStatsCacheDuration = 10 * time.Second

// StorageMonitor caches store statistics so the usage endpoint does not
// scan the store on every request.
type StorageMonitor struct {
	store         storage.Storage
	backend       string
	cacheDuration time.Duration
	now           func() time.Time

	mu        sync.Mutex
	cached    *storage.Stats
	lastCheck time.Time
}

// NewStorageMonitor creates a new storage monitor.
func NewStorageMonitor(store storage.Storage, backend string) *StorageMonitor {
	return &StorageMonitor{
		store:         store,
		backend:       backend,
		cacheDuration: DefaultStatsCacheDuration,
		now:           time.Now,
	}
}

// Backend returns the configured storage backend name
func (sm *StorageMonitor) Backend() string {
	return sm.backend
}

// GetStats returns store statistics, refreshed at most once per cache period.
func (sm *StorageMonitor) GetStats(ctx context.Context) (*storage.Stats, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.cached != nil && sm.now().Sub(sm.lastCheck) < sm.cacheDuration {
		return sm.cached, nil
	}

	stats, err := sm.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	sm.cached = stats
	sm.lastCheck = sm.now()
	return stats, nil
}

// Ping checks that the store answers a stats call within ctx, bypassing the cache.
func (sm *StorageMonitor) Ping(ctx context.Context) error {
	stats, err := sm.store.Stats(ctx)
	if err != nil {
		return err
	}

	sm.mu.Lock()
	sm.cached = stats
	sm.lastCheck = sm.now()
	sm.mu.Unlock()
	return nil
}
