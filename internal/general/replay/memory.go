// Package replay suppresses repeated scans of the same key inside a short window.
package replay

import (
	"context"
	"errors"
	"sync"
	"time"

	"school-bus/internal/ports"

	"github.com/bluele/gcache"
)

// MemoryGuard keeps the window in process. Use RedisGuard when several trip-service replicas share scanners.
type MemoryGuard struct {
	mu     sync.Mutex
	window time.Duration
	seen   gcache.Cache
}

var _ ports.ReplayGuard = (*MemoryGuard)(nil)

// NewMemoryGuard remembers up to size keys; the least recently used are evicted first.
func NewMemoryGuard(window time.Duration, size int) *MemoryGuard {
	return newMemoryGuard(window, size, gcache.NewRealClock())
}

func newMemoryGuard(window time.Duration, size int, clock gcache.Clock) *MemoryGuard {
	return &MemoryGuard{
		window: window,
		seen:   gcache.New(size).LRU().Clock(clock).Build(),
	}
}

// Allow reports true for the first call per key within the window; the window restarts on each allowed call.
func (g *MemoryGuard) Allow(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, err := g.seen.Get(key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, gcache.KeyNotFoundError):
		return false, err
	}
	if err := g.seen.SetWithExpire(key, struct{}{}, g.window); err != nil {
		return false, err
	}
	return true, nil
}
