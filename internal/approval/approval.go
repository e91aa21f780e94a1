// Package approval implements the file-backed approval channel.
//
// The orchestration core only ever reads approval status at a gate; setting
// it is an external actor's job. This package gives that contract a concrete
// shape: a YAML file mapping thread ids to verdicts, editable by hand or via
// the approve/reject CLI commands. Hosts with their own approval machinery
// implement the orchestrator's reader interface instead.
//
// File format:
//
//	approvals:
//	  thread-a1b2: approved
//	  thread-c3d4: rejected
//
// Threads absent from the file are pending: the gate suspends until an
// actor records a verdict.
package approval

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"crewflow/internal/state"
)

// DefaultPath is the approval file location relative to the working
// directory. The CREWFLOW_APPROVALS_PATH environment variable overrides it.
const DefaultPath = "approvals.yaml"

// EnvPath is the environment variable that overrides the file location.
const EnvPath = "CREWFLOW_APPROVALS_PATH"

// fileFormat is the on-disk YAML shape.
type fileFormat struct {
	Approvals map[string]string `yaml:"approvals"`
}

// File reads and writes approval verdicts in a YAML file.
type File struct {
	path string
}

// ResolvePath picks the approval file location: the environment variable if
// set, then the explicit path, then [DefaultPath].
func ResolvePath(path string) string {
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	if path != "" {
		return path
	}
	return DefaultPath
}

// NewFile creates a channel over the resolved path. The file itself is
// created lazily on the first Set.
func NewFile(path string) *File {
	return &File{path: ResolvePath(path)}
}

// Status returns the recorded verdict for a thread. A missing file or an
// unlisted thread is [state.ApprovalPending]: no verdict has been given yet.
func (f *File) Status(threadID string) (state.ApprovalStatus, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return state.ApprovalPending, nil
		}
		return state.ApprovalUnset, fmt.Errorf("failed to read approvals: %w", err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return state.ApprovalUnset, fmt.Errorf("failed to parse approvals: %w", err)
	}

	switch ff.Approvals[threadID] {
	case string(state.ApprovalApproved):
		return state.ApprovalApproved, nil
	case string(state.ApprovalRejected):
		return state.ApprovalRejected, nil
	default:
		return state.ApprovalPending, nil
	}
}

// Set records a verdict for a thread, preserving other threads' entries.
// The write is atomic (temp file plus rename).
func (f *File) Set(threadID string, status state.ApprovalStatus) error {
	if status != state.ApprovalApproved && status != state.ApprovalRejected {
		return fmt.Errorf("invalid approval verdict: %q", status)
	}

	ff := fileFormat{Approvals: make(map[string]string)}
	if data, err := os.ReadFile(f.path); err == nil {
		if err := yaml.Unmarshal(data, &ff); err != nil {
			return fmt.Errorf("failed to parse approvals: %w", err)
		}
		if ff.Approvals == nil {
			ff.Approvals = make(map[string]string)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read approvals: %w", err)
	}

	ff.Approvals[threadID] = string(status)

	data, err := yaml.Marshal(&ff)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create approvals dir: %w", err)
		}
	}

	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write approvals: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write approvals: %w", err)
	}
	return nil
}
