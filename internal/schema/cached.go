package schema

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Cached wraps a Provider with construct-then-publish caching. The first
// Snapshot call builds and publishes; later calls return the published value
// until an explicit Rebuild swaps it. There is no implicit refresh.
type Cached struct {
	source  Provider
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewCached(source Provider) *Cached {
	return &Cached{source: source}
}

func (c *Cached) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := c.current.Load(); snap != nil {
		return snap, nil
	}
	return c.Rebuild(ctx)
}

// Rebuild fetches a fresh snapshot from the source and publishes it.
// Concurrent readers keep seeing the previous snapshot until the new one is
// fully built.
func (c *Cached) Rebuild(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("build schema snapshot: %w", err)
	}
	c.current.Store(snap)
	return snap, nil
}
