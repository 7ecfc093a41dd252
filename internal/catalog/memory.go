package catalog

import (
	"context"
	"sort"
	"sync"
)

// Memory is the in-memory catalog backend.
type Memory struct {
	mu      sync.RWMutex
	records map[int]Record
}

// NewMemory constructs an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{records: make(map[int]Record)}
}

func (m *Memory) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Index] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, index int) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[index]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) Close() error { return nil }
