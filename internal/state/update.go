package state

import (
	"crewflow/internal/agent"
	"crewflow/internal/artifact"
)

// Update is a step's partial result. Each field carries its own merge rule,
// applied by [WorkflowState.Apply]:
//
//	Messages, Artifacts   appended, never replaced
//	Next, Phase,
//	ApprovalStatus        overwritten only when the pointer is non-nil
//	Contributors          set union
//	AgentRetries          per-key overwrite (shallow merge)
//	TurnCount             explicit value when non-nil, else previous+1
//	NeedsRetry, LastError overwritten only when the pointer is non-nil
//
// The TurnCount default of previous+1 is deliberate: a step that does not
// manage the counter still advances it, which is what makes runaway loops
// observable to the governor. Do not change this to always-overwrite.
type Update struct {
	Messages       []Message
	Next           *agent.Role
	Contributors   []agent.Role
	Artifacts      []artifact.Artifact
	Phase          *Phase
	ApprovalStatus *ApprovalStatus
	TurnCount      *int
	AgentRetries   map[agent.Role]int
	NeedsRetry     *bool
	LastError      *string
}

// Apply folds u into s under the per-field merge rules documented on
// [Update]. Apply is the only way step results reach the state.
func (s *WorkflowState) Apply(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	s.Artifacts = append(s.Artifacts, u.Artifacts...)

	for _, r := range u.Contributors {
		s.Contributors[r] = true
	}

	if u.Next != nil {
		s.Next = *u.Next
	}
	if u.Phase != nil {
		s.Phase = *u.Phase
	}
	if u.ApprovalStatus != nil {
		s.ApprovalStatus = *u.ApprovalStatus
	}

	for r, n := range u.AgentRetries {
		s.AgentRetries[r] = n
	}

	if u.TurnCount != nil {
		s.TurnCount = *u.TurnCount
	} else {
		s.TurnCount++
	}

	if u.NeedsRetry != nil {
		s.NeedsRetry = *u.NeedsRetry
	}
	if u.LastError != nil {
		s.LastError = *u.LastError
	}
}

// Ptr returns a pointer to v. Convenience for building [Update] literals.
func Ptr[T any](v T) *T {
	return &v
}
