// Package registry records which course titles have been ingested. It is
// owned by the ingestion orchestrator and is the only place duplicate
// detection happens.
package registry

import (
	"context"
	"slices"
	"sync"
)

type Registry interface {
	Contains(ctx context.Context, title string) (bool, error)
	// Add records title and reports whether it was new.
	Add(ctx context.Context, title string) (bool, error)
	// Titles lists recorded titles in the order they were added.
	Titles(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// Memory is a process-local Registry.
type Memory struct {
	mu     sync.RWMutex
	set    map[string]struct{}
	titles []string
}

func NewMemory() *Memory {
	return &Memory{set: make(map[string]struct{})}
}

func (m *Memory) Contains(_ context.Context, title string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.set[title]
	return ok, nil
}

func (m *Memory) Add(_ context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.set[title]; ok {
		return false, nil
	}
	m.set[title] = struct{}{}
	m.titles = append(m.titles, title)
	return true, nil
}

func (m *Memory) Titles(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.titles), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = make(map[string]struct{})
	m.titles = nil
	return nil
}
