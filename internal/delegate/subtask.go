// Package delegate implements supervisor-initiated fan-out of independent
// sub-tasks to worker roles, and the barrier that aggregates their results.
//
// A supervising step emits delegate tool calls; each accepted request becomes
// a [SubTask] with a fresh UUID. Sub-tasks run concurrently, but each is
// single-writer: only the goroutine executing a task touches its status and
// result, and the aggregation barrier reads results only after observing a
// terminal status. A failed sub-task never blocks the barrier or aborts the
// batch; it is reported in the [Summary] alongside the completed tasks.
//
// Key types:
//   - [Request] - One parsed delegate tool call
//   - [SubTask] - The unit of delegated work and its lifecycle
//   - [Batch] - The sub-tasks created by one delegation
//   - [Summary] - Completed/failed counts and details after the barrier
package delegate

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"crewflow/internal/agent"
)

// Priority orders sub-tasks for hosts that queue work. The core itself runs
// every task in the batch regardless of priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Status is a sub-task lifecycle state. Transitions are
// pending -> in_progress -> completed or failed, each taken exactly once.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is one delegate tool call from a supervising step.
type Request struct {
	// WorkerRole is the role that will execute the task. Only worker roles
	// (see [agent.Role.IsWorker]) are accepted.
	WorkerRole agent.Role `json:"worker_role"`

	// TaskDescription says what the worker should do.
	TaskDescription string `json:"task_description"`

	// Context is optional supervisor-supplied context.
	Context string `json:"context,omitempty"`

	// Priority is optional; empty means [PriorityNormal].
	Priority Priority `json:"priority,omitempty"`
}

// SubTask is one unit of delegated work. Once a sub-task reaches a terminal
// status it is immutable.
type SubTask struct {
	ID          string     `json:"id"`
	Worker      agent.Role `json:"worker"`
	Description string     `json:"description"`
	Context     string     `json:"context,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewSubTask creates a pending sub-task with a fresh unique identifier.
// Identifiers are UUIDs so concurrently running threads can never collide.
func NewSubTask(req Request) SubTask {
	priority := req.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return SubTask{
		ID:          uuid.NewString(),
		Worker:      req.WorkerRole,
		Description: req.TaskDescription,
		Context:     req.Context,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// start moves the task to in_progress. Called only by the owning worker
// goroutine.
func (t *SubTask) start() {
	t.Status = StatusInProgress
}

// complete records a successful result and the terminal timestamp.
func (t *SubTask) complete(result string) {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.Result = result
	t.CompletedAt = &now
}

// fail records the failure and the terminal timestamp.
func (t *SubTask) fail(err error) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.Error = err.Error()
	t.CompletedAt = &now
}

// NewBatch validates requests and creates their sub-tasks. A request naming
// a non-worker role fails the whole batch: delegation is an explicit,
// structured instruction, and a supervisor addressing a non-worker is a bug
// to surface, not noise to skip.
func NewBatch(requests []Request) (*Batch, error) {
	if len(requests) == 0 {
		return &Batch{}, nil
	}

	tasks := make([]SubTask, 0, len(requests))
	for _, req := range requests {
		if !req.WorkerRole.IsWorker() {
			return nil, fmt.Errorf("role %q cannot receive delegated work", req.WorkerRole)
		}
		tasks = append(tasks, NewSubTask(req))
	}

	return &Batch{Tasks: tasks}, nil
}

// Batch holds the sub-tasks created by one delegation.
type Batch struct {
	Tasks []SubTask `json:"tasks"`
}

// AllComplete reports whether every sub-task has reached a terminal state.
// Failed tasks count: failure does not block the barrier.
func (b *Batch) AllComplete() bool {
	for i := range b.Tasks {
		if !b.Tasks[i].Status.Terminal() {
			return false
		}
	}
	return true
}
