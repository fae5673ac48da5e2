// internal/common/cache/memory.go
package cache

import (
	"context"
	"sync"
)

// MemoryCache is an in-process bounded ScoreCache. When the bound is reached
// an arbitrary entry is evicted; the cache is an optimization, not a store,
// so eviction order does not matter.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	maxEntries int
}

// NewMemoryCache creates a MemoryCache bounded to maxEntries. A bound of
// zero or less disables the limit.
func NewMemoryCache(maxEntries int) *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]*Entry),
		maxEntries: maxEntries,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[key]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		for k := range m.entries {
			delete(m.entries, k)
			break
		}
	}

	cp := *entry
	m.entries[key] = &cp
	return nil
}

// Len reports the current entry count.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
