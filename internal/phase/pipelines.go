// Package phase defines the four fixed agent pipelines and the runner that
// executes one pipeline step against the LLM boundary.
//
// Pipeline topology is compiled in, not loaded at runtime: the phases and
// their step orders are product decisions, and the one conditional (the Build
// phase's review check) is likewise fixed. What remains configurable is which
// model each role uses, not which roles run.
//
// Key types:
//   - [Pipeline] - A phase's ordered agent steps
//   - [Runner] - Executes one step: cache check, invocation, extraction
//   - [StepResult] - A step's state update plus any handoff it issued
package phase

import (
	"crewflow/internal/agent"
	"crewflow/internal/state"
)

// Pipeline is one phase's fixed, ordered sequence of agent steps.
type Pipeline struct {
	Phase state.Phase
	Steps []agent.Role
}

// pipelines holds the compiled phase definitions.
var pipelines = map[state.Phase]Pipeline{
	state.PhaseStrategy: {
		Phase: state.PhaseStrategy,
		Steps: []agent.Role{agent.Founder, agent.ProductManager, agent.UXResearcher},
	},
	state.PhaseDesign: {
		Phase: state.PhaseDesign,
		Steps: []agent.Role{agent.Designer, agent.Accessibility},
	},
	state.PhaseBuild: {
		Phase: state.PhaseBuild,
		Steps: []agent.Role{agent.Planner, agent.Security, agent.Builder, agent.Reviewer, agent.Tester},
	},
	state.PhaseShip: {
		Phase: state.PhaseShip,
		Steps: []agent.Role{agent.TechWriter, agent.SRE, agent.DataAnalyst},
	},
}

// For returns the compiled pipeline for a phase.
func For(p state.Phase) (Pipeline, bool) {
	pipe, ok := pipelines[p]
	return pipe, ok
}

// StepIndex returns the position of role in the pipeline, or -1 when the
// role is not a step of this phase. Each role appears at most once per
// pipeline, which is what makes resume-by-next-agent unambiguous.
func (p Pipeline) StepIndex(role agent.Role) int {
	for i, r := range p.Steps {
		if r == role {
			return i
		}
	}
	return -1
}
