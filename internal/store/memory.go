// internal/store/memory.go
//
// In-memory implementation of the Store interface.
// This is a lightweight persistence layer used in development/testing, or when
// durability across restarts is not required.
//
// Characteristics:
//   - Stores encoded records keyed by session key, so callers never share
//     state with the store (every Load decodes a fresh copy).
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sync"

	"github.com/robalobadob/seabattle/internal/game"
)

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex      // guards records map
	records map[string][]byte // keyed by session key
}

// NewMemoryStore constructs a new in-memory Store.
func NewMemoryStore() Store {
	return &memory{records: make(map[string][]byte)}
}

// Save replaces the record for key.
func (m *memory) Save(ctx context.Context, key string, rec *game.Record) error {
	b, err := encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = b
	return nil
}

// Load returns a decoded copy or ErrNotFound.
func (m *memory) Load(ctx context.Context, key string) (*game.Record, error) {
	m.mu.RLock()
	b, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(b)
}

// Delete removes the record; a missing key is not an error.
func (m *memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memory) Close() error { return nil }
