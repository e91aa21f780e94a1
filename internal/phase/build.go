package phase

import (
	"strings"

	"crewflow/internal/agent"
	"crewflow/internal/state"
)

// ApprovalMarker is the phrase the Reviewer includes to approve an
// implementation. Matching is a case-insensitive substring check on the most
// recent message.
//
// TODO: have the Reviewer emit a structured verdict tool call instead of a
// phrase in prose; free-text matching couples control flow to model wording.
const ApprovalMarker = "approved"

// ReviewApproved reports whether the latest Reviewer message contains the
// approval marker.
//
// Note the verdict currently has no routing effect: whether or not the marker
// is present, the Build pipeline proceeds from Reviewer to Tester. The
// changes-requested route back to Builder is not wired; activating it is an
// open product decision, so callers must not branch on this result yet. It is
// computed and logged so the verdict stays visible in run output.
func ReviewApproved(s *state.WorkflowState) bool {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.From != string(agent.Reviewer) {
			continue
		}
		return strings.Contains(strings.ToLower(m.Content), ApprovalMarker)
	}
	return false
}
