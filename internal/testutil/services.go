package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/blockrt/internal/engine"
)

var (
	_ engine.KVStore   = (*MemoryKV)(nil)
	_ engine.Scheduler = (*MemoryScheduler)(nil)
)

// MemoryKV is an in-memory engine.KVStore.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]json.RawMessage
}

// NewMemoryKV creates a store seeded with entries.
func NewMemoryKV(entries map[string]json.RawMessage) *MemoryKV {
	data := maps.Clone(entries)
	if data == nil {
		data = make(map[string]json.RawMessage)
	}
	return &MemoryKV{data: data}
}

// Get implements engine.KVStore.
func (m *MemoryKV) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements engine.KVStore.
func (m *MemoryKV) Set(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(value)
	return nil
}

// Delete implements engine.KVStore.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MemoryScheduler records jobs without running them.
type MemoryScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[string]engine.Job
}

// NewMemoryScheduler creates an empty scheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{jobs: make(map[string]engine.Job)}
}

// Schedule implements engine.Scheduler. Ids are "job-1", "job-2", ...
func (m *MemoryScheduler) Schedule(_ context.Context, job engine.Job) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("job-%d", m.next)
	m.jobs[id] = job
	return id, nil
}

// Cancel implements engine.Scheduler.
func (m *MemoryScheduler) Cancel(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return fmt.Errorf("cancel %s: no such job", id)
	}
	delete(m.jobs, id)
	return nil
}

// Jobs returns the pending jobs by id.
func (m *MemoryScheduler) Jobs() map[string]engine.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.jobs)
}
