package cli

import (
	"errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crewflow/internal/orchestrator"
	"crewflow/internal/state"
)

func newRunCommand(app *App) *cobra.Command {
	var threadID string

	cmd := &cobra.Command{
		Use:   "run <message>",
		Short: "Run the full workflow for a request",
		Long: `Run a request through the four workflow phases:
  1. strategy - Founder, ProductManager, UXResearcher
  2. design   - Designer, Accessibility
  3. build    - Planner, Security, Builder, Reviewer, Tester
  4. ship     - TechWriter, SRE, DataAnalyst

Phases listed in approval.required_phases suspend until an approve or
reject verdict is recorded (see the approve and reject commands). A
suspended run exits with code 3 and can be continued with resume.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if threadID == "" {
				threadID = "thread-" + uuid.NewString()[:8]
			}
			st, err := app.Orchestrator.Run(cmd.Context(), threadID, args[0])
			return reportOutcome(app, st, err)
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "thread id (generated when omitted)")
	return cmd
}

func newResumeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <thread-id>",
		Short: "Continue a suspended or checkpointed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Orchestrator.Resume(cmd.Context(), args[0])
			return reportOutcome(app, st, err)
		},
	}
}

// reportOutcome prints the run's transcript tail and summary, and maps the
// orchestrator's outcome to an exit code. Partial state is always shown:
// even a failed run keeps its messages and artifacts.
func reportOutcome(app *App, st *state.WorkflowState, err error) error {
	if st != nil {
		for _, m := range st.Messages {
			app.Printer.Message(m)
		}
		app.Printer.Summary(st)
	}

	switch {
	case err == nil:
		app.Printer.Success("run complete")
		return nil
	case errors.Is(err, orchestrator.ErrApprovalPending):
		app.Printer.Notice("suspended: approval pending for thread " + st.ThreadID)
		app.Printer.Notice("record a verdict with: crewflow approve " + st.ThreadID)
		return NewExitError(3)
	case errors.Is(err, orchestrator.ErrThreadComplete):
		app.Printer.Notice("thread " + st.ThreadID + " already completed all phases")
		return nil
	default:
		app.Printer.Error(err.Error())
		return NewExitError(1)
	}
}
