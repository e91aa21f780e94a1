package orchestrator

import (
	"errors"
	"fmt"

	"crewflow/internal/agent"
)

// Sentinel errors for gate outcomes. Both are returned together with the
// state accumulated so far; neither discards progress.
var (
	// ErrApprovalPending indicates the run suspended at an approval gate.
	// Resume the thread once an external actor records a verdict.
	ErrApprovalPending = errors.New("approval pending, run suspended")

	// ErrApprovalRejected indicates an external actor rejected the gated
	// phase. The run is terminated.
	ErrApprovalRejected = errors.New("approval rejected, run terminated")

	// ErrThreadComplete indicates the thread already finished every phase.
	// Nothing runs; start a new thread for new work.
	ErrThreadComplete = errors.New("thread already completed all phases")
)

// BoundedLoopError reports that the run exceeded the configured turn
// ceiling. It is fatal regardless of phase; the caller receives the partial
// state alongside it.
type BoundedLoopError struct {
	Turns int
	Limit int
}

// Error implements the error interface.
func (e *BoundedLoopError) Error() string {
	return fmt.Sprintf("turn ceiling exceeded: %d turns taken, limit %d", e.Turns, e.Limit)
}

// AgentRetryExhaustedError reports that one agent failed more times than the
// per-agent retry ceiling allows, and no (further) fallback was available.
type AgentRetryExhaustedError struct {
	Agent   agent.Role
	Retries int
	Limit   int
}

// Error implements the error interface.
func (e *AgentRetryExhaustedError) Error() string {
	return fmt.Sprintf("agent %s exhausted retries: %d attempts, limit %d", e.Agent, e.Retries, e.Limit)
}
