package llm

import (
	"context"
	"fmt"
	"strings"

	"crewflow/internal/agent"
	"crewflow/internal/state"
)

// ScriptedInvoker is a deterministic [Invoker] that plays each role with
// canned, request-aware content, including the tool-call envelopes the real
// agents would emit. It lets the CLI drive a complete run end to end with no
// provider configured, and gives integration tests stable output.
type ScriptedInvoker struct{}

// Invoke produces the scripted response for the request's role.
func (ScriptedInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	goal := firstUserMessage(req.Messages)
	content := scriptFor(req.Agent, goal)

	return Response{
		Content:   content,
		Model:     req.Model,
		TokensIn:  len(req.SystemPrompt) / 4,
		TokensOut: len(content) / 4,
	}, nil
}

// firstUserMessage finds the original request text, which the scripts thread
// through their output so a run reads coherently.
func firstUserMessage(messages []state.Message) string {
	for _, m := range messages {
		if m.From == state.RoleUser {
			return m.Content
		}
	}
	return "the requested product"
}

func scriptFor(role agent.Role, goal string) string {
	switch role {
	case agent.Founder:
		return fmt.Sprintf("Vision: %s. The problem is real, the audience is underserved, and a focused first release wins.", goal)

	case agent.ProductManager:
		return strings.Join([]string{
			fmt.Sprintf("Requirements for %q follow.", goal),
			fmt.Sprintf(`{"tool":"artifact","artifact":{"kind":"requirements","requirements":{"goal":%q,"success_metrics":["weekly active users","task completion rate"],"user_stories":["As a user, I can create an item","As a user, I can mark an item done","As a user, I can delete an item"],"out_of_scope":["multi-tenant accounts","offline sync"]}}}`, goal),
		}, "\n")

	case agent.UXResearcher:
		return "Primary journey: capture, review, complete. Riskiest assumption: users return daily without reminders."

	case agent.Designer:
		return strings.Join([]string{
			"Design direction: single-column list, generous spacing, one primary action.",
			`{"tool":"artifact","artifact":{"kind":"design_spec","design_spec":{"summary":"Single-screen list with inline editing","screens":["list","item detail","settings"],"accessibility_notes":["4.5:1 contrast minimum","full keyboard path"]}}}`,
		}, "\n")

	case agent.Accessibility:
		return "Design review: contrast passes, focus order is logical. Add visible focus rings on list rows."

	case agent.Planner:
		return strings.Join([]string{
			"Plan: scaffold data layer, build list UI, wire persistence, then test.",
			`{"tool":"artifact","artifact":{"kind":"build_plan","build_plan":{"steps":["scaffold storage","implement list view","wire item actions","write tests"],"risks":["state sync between views"]}}}`,
			`{"tool":"delegate","worker_role":"Builder","task_description":"Scaffold the storage layer and item model","priority":"high"}`,
			`{"tool":"delegate","worker_role":"Tester","task_description":"Draft the acceptance test matrix for item actions"}`,
		}, "\n")

	case agent.Security:
		return "Threat review: no injection surface in local storage; sanitize item titles before rendering."

	case agent.Builder:
		return strings.Join([]string{
			"Implemented the planned changes.",
			`{"tool":"artifact","artifact":{"kind":"code_change","code_change":{"summary":"List view, item model, and persistence wiring","files":["store.go","list.go","item.go"]}}}`,
		}, "\n")

	case agent.Reviewer:
		return "APPROVED. Implementation matches the plan; naming is consistent and error paths are covered."

	case agent.Tester:
		return strings.Join([]string{
			"Ran the acceptance matrix.",
			`{"tool":"artifact","artifact":{"kind":"test_report","test_report":{"passed":12,"failed":0,"notes":"all item actions covered"}}}`,
		}, "\n")

	case agent.TechWriter:
		return strings.Join([]string{
			"Documented the shipped behavior.",
			fmt.Sprintf(`{"tool":"artifact","artifact":{"kind":"doc_page","doc_page":{"title":"Getting started","body":"How to use %s."}}}`, goal),
		}, "\n")

	case agent.SRE:
		return strings.Join([]string{
			"Operational readiness complete.",
			`{"tool":"artifact","artifact":{"kind":"runbook","runbook":{"deploy_steps":["build","release","verify"],"rollback_steps":["redeploy previous tag"],"alerts":["error rate > 1%"]}}}`,
		}, "\n")

	case agent.DataAnalyst:
		return "Launch metrics: activation within first session, seven-day retention, items completed per user."

	default:
		return fmt.Sprintf("%s has nothing to add.", role)
	}
}
