package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"crewflow/internal/agent"
	"crewflow/internal/state"
)

// FileStore persists one JSON snapshot per thread under a directory.
// Writes go to a temp file first and are renamed into place, so a crash
// mid-write never leaves a truncated snapshot behind.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path returns the snapshot file for a thread.
func (f *FileStore) path(threadID string) string {
	return filepath.Join(f.dir, threadID+".json")
}

// Save writes st atomically to <dir>/<thread-id>.json.
func (f *FileStore) Save(_ context.Context, st *state.WorkflowState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	fullPath := f.path(st.ThreadID)
	tmpPath := fullPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot for a thread.
func (f *FileStore) Load(_ context.Context, threadID string) (*state.WorkflowState, error) {
	data, err := os.ReadFile(f.path(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var st state.WorkflowState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	// Maps may arrive nil from old or hand-edited snapshots.
	if st.Contributors == nil {
		st.Contributors = make(map[agent.Role]bool)
	}
	if st.AgentRetries == nil {
		st.AgentRetries = make(map[agent.Role]int)
	}

	return &st, nil
}
