// Package state defines the workflow state threaded through a run and the
// merge rules that fold each step's partial result into it.
//
// One [WorkflowState] exists per conversation thread. It is owned by the
// orchestrator: exactly one step reads and writes it at a time, and a step
// never holds a reference past its own invocation. Steps return an [Update]
// (a partial result) rather than mutating the state directly; the
// orchestrator folds updates in with [WorkflowState.Apply], whose per-field
// merge rules are the contract every test in this package pins down.
//
// Key types:
//   - [WorkflowState] - The full per-thread record
//   - [Update] - A step's partial result with explicit merge semantics
//   - [Message] - One role-tagged entry in the append-only transcript
//   - [Phase] - One of the four sequential workflow phases
package state

import (
	"time"

	"crewflow/internal/agent"
	"crewflow/internal/artifact"
)

// Phase is one of the four sequential workflow stages.
type Phase string

const (
	PhaseStrategy Phase = "strategy"
	PhaseDesign   Phase = "design"
	PhaseBuild    Phase = "build"
	PhaseShip     Phase = "ship"
)

// Phases lists the four phases in execution order.
var Phases = []Phase{PhaseStrategy, PhaseDesign, PhaseBuild, PhaseShip}

// ApprovalStatus is the state of an approval gate instance. It transitions
// at most once per gate: unset or pending, then approved or rejected.
type ApprovalStatus string

const (
	ApprovalUnset    ApprovalStatus = ""
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// RoleUser tags transcript entries written by the caller rather than an agent.
const RoleUser = "user"

// Message is one entry in the transcript. From is either [RoleUser] or an
// [agent.Role] string. Messages are append-only: never reordered, never
// truncated.
type Message struct {
	From    string    `json:"from"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// UserMessage builds a transcript entry from the caller.
func UserMessage(content string) Message {
	return Message{From: RoleUser, Content: content, At: time.Now().UTC()}
}

// AgentMessage builds a transcript entry from a roster role.
func AgentMessage(role agent.Role, content string) Message {
	return Message{From: string(role), Content: content, At: time.Now().UTC()}
}

// WorkflowState is the single mutable record for one conversation thread.
type WorkflowState struct {
	// ThreadID keys this state in the checkpoint store.
	ThreadID string `json:"thread_id"`

	// Messages is the ordered, append-only transcript.
	Messages []Message `json:"messages"`

	// Next is the role scheduled to run next. Last write wins.
	Next agent.Role `json:"next,omitempty"`

	// PendingStep is the regular pipeline step that resumes once a handoff
	// or fallback override finishes. Empty when no override is in flight.
	// Without it, a snapshot taken while Next points outside the phase's
	// pipeline could not recover its position on resume.
	PendingStep agent.Role `json:"pending_step,omitempty"`

	// Contributors is the set of roles that have acted on this state.
	Contributors map[agent.Role]bool `json:"contributors"`

	// Artifacts is the append-only sequence of structured outputs.
	Artifacts []artifact.Artifact `json:"artifacts"`

	// Phase is the current workflow phase. It moves forward only.
	Phase Phase `json:"phase"`

	// RequiresApproval marks the next gated phase transition.
	RequiresApproval bool `json:"requires_approval,omitempty"`

	// ApprovalStatus is the gate's externally supplied verdict.
	ApprovalStatus ApprovalStatus `json:"approval_status,omitempty"`

	// TurnCount counts orchestrator steps. Non-decreasing; the governor
	// terminates the run when it passes the configured ceiling.
	TurnCount int `json:"turn_count"`

	// AgentRetries maps a role to its retry count for the current step.
	AgentRetries map[agent.Role]int `json:"agent_retries,omitempty"`

	// NeedsRetry and LastError are transient flags set when a step must be
	// re-attempted. They are cleared by the next successful merge.
	NeedsRetry bool   `json:"needs_retry,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// New creates the state for a fresh thread.
func New(threadID string) *WorkflowState {
	return &WorkflowState{
		ThreadID:     threadID,
		Contributors: make(map[agent.Role]bool),
		AgentRetries: make(map[agent.Role]int),
		Phase:        PhaseStrategy,
	}
}

// LatestMessage returns the most recent transcript entry, or a zero Message
// when the transcript is empty.
func (s *WorkflowState) LatestMessage() Message {
	if len(s.Messages) == 0 {
		return Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// ContributorList returns the contributor set as a slice in roster order,
// for display and assertions. Set semantics live in Contributors itself.
func (s *WorkflowState) ContributorList() []agent.Role {
	var out []agent.Role
	for _, r := range agent.Roster {
		if s.Contributors[r] {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy. The orchestrator snapshots state before each
// step so a cancelled or failed step leaves the original untouched, and the
// checkpoint store clones on save/load so no reference crosses the boundary.
func (s *WorkflowState) Clone() *WorkflowState {
	c := *s

	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)

	c.Artifacts = make([]artifact.Artifact, len(s.Artifacts))
	copy(c.Artifacts, s.Artifacts)

	c.Contributors = make(map[agent.Role]bool, len(s.Contributors))
	for k, v := range s.Contributors {
		c.Contributors[k] = v
	}

	c.AgentRetries = make(map[agent.Role]int, len(s.AgentRetries))
	for k, v := range s.AgentRetries {
		c.AgentRetries[k] = v
	}

	return &c
}
