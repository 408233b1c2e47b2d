package report

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates a new in-memory [Store] implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Update stores an [Entry], replacing any previous entry with the same name.
func (m *MemoryStore) Update(entry Entry) {
	m.mu.Lock()
	m.entries[entry.Name] = entry
	m.mu.Unlock()
}

// GetAll returns a snapshot of all stored entries ordered by name.
func (m *MemoryStore) GetAll() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries
}

// Failed returns the number of stored waits that did not succeed.
func (m *MemoryStore) Failed() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.entries {
		if !e.Succeeded() {
			n++
		}
	}
	return n
}
