// Package artifact defines the typed, immutable outputs agents produce
// during a run.
//
// An [Artifact] is a tagged variant: the Kind field names the variant and
// exactly one of the payload pointers is populated, mirroring how only the
// matching optional field of a stream event is set. Artifacts are append-only
// in the workflow state and never mutated after creation.
package artifact

import (
	"fmt"
	"time"
)

// Kind names an artifact variant.
type Kind string

const (
	KindRequirements Kind = "requirements"
	KindDesignSpec   Kind = "design_spec"
	KindBuildPlan    Kind = "build_plan"
	KindCodeChange   Kind = "code_change"
	KindTestReport   Kind = "test_report"
	KindDocPage      Kind = "doc_page"
	KindRunbook      Kind = "runbook"
)

// Artifact is one structured output. Producer is the roster role that emitted
// it (kept as a plain string so this package stays import-free of the roster).
// Exactly one payload pointer matches Kind; the rest are nil.
type Artifact struct {
	Kind      Kind      `json:"kind"`
	Producer  string    `json:"producer"`
	CreatedAt time.Time `json:"created_at"`

	Requirements *Requirements `json:"requirements,omitempty"`
	DesignSpec   *DesignSpec   `json:"design_spec,omitempty"`
	BuildPlan    *BuildPlan    `json:"build_plan,omitempty"`
	CodeChange   *CodeChange   `json:"code_change,omitempty"`
	TestReport   *TestReport   `json:"test_report,omitempty"`
	DocPage      *DocPage      `json:"doc_page,omitempty"`
	Runbook      *Runbook      `json:"runbook,omitempty"`
}

// Requirements is the product requirements document.
type Requirements struct {
	Goal           string   `json:"goal"`
	SuccessMetrics []string `json:"success_metrics,omitempty"`
	UserStories    []string `json:"user_stories"`
	OutOfScope     []string `json:"out_of_scope,omitempty"`
}

// DesignSpec describes screens, flows, and visual direction.
type DesignSpec struct {
	Summary            string   `json:"summary"`
	Screens            []string `json:"screens,omitempty"`
	AccessibilityNotes []string `json:"accessibility_notes,omitempty"`
}

// BuildPlan is the ordered implementation plan.
type BuildPlan struct {
	Steps []string `json:"steps"`
	Risks []string `json:"risks,omitempty"`
}

// CodeChange summarizes an implementation change set.
type CodeChange struct {
	Summary string   `json:"summary"`
	Files   []string `json:"files,omitempty"`
}

// TestReport records a test run.
type TestReport struct {
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
	Notes  string `json:"notes,omitempty"`
}

// DocPage is a unit of user-facing documentation.
type DocPage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Runbook is the operational guide for the shipped system.
type Runbook struct {
	DeploySteps   []string `json:"deploy_steps,omitempty"`
	RollbackSteps []string `json:"rollback_steps,omitempty"`
	Alerts        []string `json:"alerts,omitempty"`
}

// Validate checks that the Kind tag matches the populated payload.
func (a Artifact) Validate() error {
	populated := map[Kind]bool{
		KindRequirements: a.Requirements != nil,
		KindDesignSpec:   a.DesignSpec != nil,
		KindBuildPlan:    a.BuildPlan != nil,
		KindCodeChange:   a.CodeChange != nil,
		KindTestReport:   a.TestReport != nil,
		KindDocPage:      a.DocPage != nil,
		KindRunbook:      a.Runbook != nil,
	}

	matched, known := populated[a.Kind]
	if !known {
		return fmt.Errorf("unknown artifact kind: %s", a.Kind)
	}
	if !matched {
		return fmt.Errorf("artifact kind %s has no %s payload", a.Kind, a.Kind)
	}

	count := 0
	for _, set := range populated {
		if set {
			count++
		}
	}
	if count != 1 {
		return fmt.Errorf("artifact must carry exactly one payload, found %d", count)
	}
	return nil
}

// New stamps an artifact with its producer and creation time.
func New(kind Kind, producer string, a Artifact) Artifact {
	a.Kind = kind
	a.Producer = producer
	a.CreatedAt = time.Now().UTC()
	return a
}
