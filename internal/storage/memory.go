package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/praxis-labs/mentat/internal/container"
)

// MemoryStore is a container.DataStorage held entirely in memory, for
// tests and in-process embedding.
type MemoryStore struct {
	mu          sync.Mutex
	initialized bool
	closed      bool

	states       map[string]container.ContainerState
	interactions []container.InteractionEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]container.ContainerState)}
}

// Initialize marks the store usable. It also reopens a released store.
func (m *MemoryStore) Initialize(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	m.closed = false
	return nil
}

func (m *MemoryStore) check() error {
	if m.closed {
		return ErrStoreClosed
	}
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

// SaveState stores the user's engine state.
func (m *MemoryStore) SaveState(_ context.Context, userID string, state container.ContainerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.states[userID] = state
	return nil
}

// LoadState returns the user's saved state, or nil when none exists.
func (m *MemoryStore) LoadState(_ context.Context, userID string) (*container.ContainerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	state, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	cp := state
	return &cp, nil
}

// SaveInteraction appends one event to the interaction log.
func (m *MemoryStore) SaveInteraction(_ context.Context, event container.InteractionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.interactions = append(m.interactions, event)
	return nil
}

// LoadRecent returns the user's newest events, newest first, optionally
// filtered by event type.
func (m *MemoryStore) LoadRecent(_ context.Context, userID string, limit int, eventTypes ...string) ([]container.InteractionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var matched []container.InteractionEvent
	for i := len(m.interactions) - 1; i >= 0; i-- {
		ev := m.interactions[i]
		if ev.UserID != userID {
			continue
		}
		if len(eventTypes) > 0 && !typeMatches(eventTypes, ev.Type) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp > matched[j].Timestamp
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// DeleteUserData removes the user's state and interaction log.
func (m *MemoryStore) DeleteUserData(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.states, userID)
	kept := m.interactions[:0]
	for _, ev := range m.interactions {
		if ev.UserID != userID {
			kept = append(kept, ev)
		}
	}
	m.interactions = kept
	return nil
}

// Release marks the store closed. Data is kept so a later Initialize
// can reopen it.
func (m *MemoryStore) Release(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func typeMatches(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
