package core

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a RecordStore and ScopeChecker kept in process memory.
// The CLI uses it for dry-runs without a database.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	scopes   map[int64]bool
	anyScope bool
	nextID   int64
	clock    Clock
}

var (
	_ RecordStore  = (*MemoryStore)(nil)
	_ ScopeChecker = (*MemoryStore)(nil)
)

// NewMemoryStore returns a store that accepts the given campaigns. With no
// campaigns every scope is accepted.
func NewMemoryStore(scopes ...int64) *MemoryStore {
	m := &MemoryStore{
		records:  make(map[string]Record),
		scopes:   make(map[int64]bool),
		anyScope: len(scopes) == 0,
		clock:    SystemClock{},
	}
	for _, s := range scopes {
		m.scopes[s] = true
	}
	return m
}

func (m *MemoryStore) ScopeExists(_ context.Context, scope int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.anyScope || m.scopes[scope], nil
}

func (m *MemoryStore) FindByKey(_ context.Context, key DuplicateKey) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key.String()]
	return rec, ok, nil
}

func (m *MemoryStore) Create(_ context.Context, rec CanonicalRecord, key DuplicateKey) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key.String()]; ok {
		return Record{}, fmt.Errorf("insert %s: %w", key.Kind, ErrDuplicateKey)
	}
	m.nextID++
	ts := m.clock.Now()
	stored := Record{ID: m.nextID, CanonicalRecord: rec, CreatedAt: ts, UpdatedAt: ts}
	m.records[key.String()] = stored
	return stored, nil
}

func (m *MemoryStore) Update(_ context.Context, existing Record, changes []FieldChange) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := ApplyChanges(existing, changes)
	updated.UpdatedAt = m.clock.Now()
	for k, r := range m.records {
		if r.ID == existing.ID {
			m.records[k] = updated
			return updated, nil
		}
	}
	return Record{}, fmt.Errorf("update record %d: not found", existing.ID)
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
