package cli

import (
	"github.com/spf13/cobra"

	"crewflow/internal/state"
)

func newApproveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <thread-id>",
		Short: "Record an approved verdict for a suspended run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Approvals.Set(args[0], state.ApprovalApproved); err != nil {
				return err
			}
			app.Printer.Success("approved " + args[0])
			app.Printer.Notice("continue the run with: crewflow resume " + args[0])
			return nil
		},
	}
}

func newRejectCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <thread-id>",
		Short: "Record a rejected verdict for a suspended run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Approvals.Set(args[0], state.ApprovalRejected); err != nil {
				return err
			}
			app.Printer.Success("rejected " + args[0])
			return nil
		},
	}
}
