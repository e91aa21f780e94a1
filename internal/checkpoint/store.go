// Package checkpoint persists workflow state between orchestrator steps so a
// run can be suspended (approval gates, host restarts) and resumed from the
// exact step it would have taken next.
//
// Key types:
//   - [Store] - The persistence boundary, keyed by thread id
//   - [MemoryStore] - Process-local store for tests and embedded hosts
//   - [FileStore] - One JSON file per thread, written atomically
//
// Both implementations clone state on save and load: the persisted snapshot
// is the only legitimate way state crosses a thread or process boundary, so
// no live reference may escape through the store.
package checkpoint

import (
	"context"
	"errors"
	"sync"

	"crewflow/internal/state"
)

// ErrNotFound is returned when no checkpoint exists for a thread id.
var ErrNotFound = errors.New("no checkpoint for thread")

// Store saves and restores workflow state by thread id.
type Store interface {
	// Save persists a snapshot of st, overwriting any previous snapshot
	// for the same thread.
	Save(ctx context.Context, st *state.WorkflowState) error

	// Load restores the snapshot for a thread. Returns [ErrNotFound] when
	// the thread has never been saved.
	Load(ctx context.Context, threadID string) (*state.WorkflowState, error)
}

// MemoryStore keeps snapshots in a mutex-guarded map. Safe for concurrent
// threads; contents vanish with the process.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*state.WorkflowState
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*state.WorkflowState)}
}

// Save stores a deep copy of st.
func (m *MemoryStore) Save(_ context.Context, st *state.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[st.ThreadID] = st.Clone()
	return nil
}

// Load returns a deep copy of the stored snapshot.
func (m *MemoryStore) Load(_ context.Context, threadID string) (*state.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.snapshots[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}
