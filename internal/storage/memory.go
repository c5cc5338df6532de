package storage

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// MemoryStorage is an in-memory storage backend.
type MemoryStorage struct {
	collections map[string][]*record.Record
	mu          sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		collections: make(map[string][]*record.Record),
	}
}

// Query evaluates q over a snapshot of the collection.
func (m *MemoryStorage) Query(_ context.Context, collection string, q query.Query) (Result, error) {
	m.mu.RLock()
	recs := slices.Clone(m.collections[collection])
	m.mu.RUnlock()
	return Evaluate(recs, q), nil
}

// Insert appends copies of recs so later selection marks on the caller's
// records never leak into storage.
func (m *MemoryStorage) Insert(_ context.Context, collection string, recs []*record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range recs {
		m.collections[collection] = append(m.collections[collection], record.New(r.Value()))
	}
	return nil
}

// Delete drops a collection.
func (m *MemoryStorage) Delete(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

// Collections lists the collection names.
func (m *MemoryStorage) Collections(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Count returns the number of records in a collection.
func (m *MemoryStorage) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

// Close closes the storage backend.
func (m *MemoryStorage) Close() error {
	return nil
}
