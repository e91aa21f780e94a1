// Package handoff implements agent-initiated control transfer.
//
// A step may embed a handoff tool call in its output to name the agent that
// should run next, overriding the phase's fixed step order. Extraction is
// tolerant of noise (non-handoff envelopes and malformed JSON are not
// handoffs), but an explicit handoff naming a target outside the roster is a
// [RoutingError]: the run aborts and the scheduled next agent is left
// untouched.
//
// Key types:
//   - [Request] - A parsed handoff with target, reason, and optional context
//   - [RoutingError] - An explicit handoff to an unknown target
package handoff

import (
	"encoding/json"
	"fmt"

	"crewflow/internal/agent"
	"crewflow/internal/toolcall"
)

// Request is one handoff tool call.
type Request struct {
	// TargetAgent is the roster role that should run next.
	TargetAgent agent.Role `json:"target_agent"`

	// Reason explains the transfer, kept for audit.
	Reason string `json:"reason"`

	// Context is optional free-form context for the target agent.
	Context string `json:"context,omitempty"`
}

// RoutingError reports a handoff whose target is not on the roster.
type RoutingError struct {
	Target string
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("handoff target %q is not a roster agent", e.Target)
}

// rawRequest matches the wire shape before roster validation.
type rawRequest struct {
	TargetAgent string `json:"target_agent"`
	Reason      string `json:"reason"`
	Context     string `json:"context"`
}

// Extract finds the handoff in a step's tool-call envelopes.
//
// Envelopes for other tools are ignored, as are handoff envelopes whose
// payload fails to decode (malformed output is silently not a handoff). A
// decodable handoff with an off-roster target returns a [RoutingError].
// When several valid handoffs appear, the last one wins, matching
// last-write-wins on the state's next-agent field.
func Extract(envelopes []toolcall.Envelope) (*Request, error) {
	var found *Request

	for _, e := range toolcall.Filter(envelopes, toolcall.ToolHandoff) {
		var raw rawRequest
		if err := json.Unmarshal(e.Payload, &raw); err != nil {
			continue
		}
		if raw.TargetAgent == "" {
			continue
		}

		target := agent.Role(raw.TargetAgent)
		if !target.IsValid() {
			return nil, &RoutingError{Target: raw.TargetAgent}
		}

		found = &Request{
			TargetAgent: target,
			Reason:      raw.Reason,
			Context:     raw.Context,
		}
	}

	return found, nil
}
