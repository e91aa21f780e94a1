package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"crewflow/internal/checkpoint"
)

func newStatusCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <thread-id>",
		Short: "Show the checkpointed state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.Store.Load(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, checkpoint.ErrNotFound) {
					return fmt.Errorf("no run found for thread %q", args[0])
				}
				return err
			}

			app.Printer.Summary(st)

			if st.RequiresApproval {
				verdict, err := app.Approvals.Status(st.ThreadID)
				if err != nil {
					return err
				}
				app.Printer.Notice(fmt.Sprintf("approval: %s (next step: %s)", verdict, st.Next))
			} else if st.Next != "" {
				app.Printer.Notice("next step: " + string(st.Next))
			}
			return nil
		},
	}
}
