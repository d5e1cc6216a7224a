package resultcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is the process-local fallback when no durable backend is
// configured. Entries expire after their TTL and do not survive restarts.
type MemoryStore struct {
	cache *gocache.Cache
}

func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &MemoryStore{cache: gocache.New(defaultTTL, 10*time.Minute)}
}

func (m *MemoryStore) Put(_ context.Context, id string, payload []byte, ttl time.Duration) error {
	if id == "" {
		return fmt.Errorf("result id is required")
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.cache.Set(id, stored, ttl)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) ([]byte, error) {
	value, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return value.([]byte), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if _, ok := m.cache.Get(id); !ok {
		return ErrNotFound
	}
	m.cache.Delete(id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	items := m.cache.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
