// In-memory substrate.
package trove

import (
	"iter"
	"maps"
	"slices"
	"sync"
)

// MemStore is a FlatStore backed by a map. Contents are lost when the
// process exits. The zero value is ready to use.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

func (m *MemStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

func (m *MemStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys yields a sorted snapshot of the keys.
func (m *MemStore) Keys() iter.Seq2[string, error] {
	m.mu.RLock()
	keys := slices.Sorted(maps.Keys(m.data))
	m.mu.RUnlock()

	return func(yield func(string, error) bool) {
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}
