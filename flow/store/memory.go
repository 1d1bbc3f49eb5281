package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-memory TimelineStore.
//
// Designed for:
//   - Testing and development
//   - Single-process deployments where persistence isn't required
//
// Memory is thread-safe. Data is lost when the process terminates; use a
// database-backed store when timelines must survive restarts.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]RunRecord
	entries map[string][]Entry
}

// NewMemory creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemory()
//	eng := flow.New(backend, flow.WithStore(st))
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[string]RunRecord),
		entries: make(map[string][]Entry),
	}
}

// CreateRun registers a run record.
func (m *Memory) CreateRun(_ context.Context, run RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

// AppendEntry appends a timeline entry, enforcing ascending sequence order.
func (m *Memory) AppendEntry(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[e.RunID]; !ok {
		return ErrNotFound
	}
	existing := m.entries[e.RunID]
	if len(existing) > 0 && e.Seq <= existing[len(existing)-1].Seq {
		return ErrOutOfOrder
	}
	m.entries[e.RunID] = append(existing, e)
	return nil
}

// Entries returns a copy of the run's timeline in sequence order.
func (m *Memory) Entries(_ context.Context, runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.runs[runID]; !ok {
		return nil, ErrNotFound
	}
	out := make([]Entry, len(m.entries[runID]))
	copy(out, m.entries[runID])
	return out, nil
}

// Run returns the run record, or ErrNotFound.
func (m *Memory) Run(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return run, nil
}

// ListRuns returns all run records, oldest first.
func (m *Memory) ListRuns(_ context.Context) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunRecord, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
