package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docweave/internal/models"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Request cancellation of a running session",
	Long: `cancel sets the cancel-requested flag the Orchestrator observes at its
next stage boundary. The flag lives only in the session manager's in-memory
cache, so this only has an effect when issued against the same process that
is running submit (for example piping a known session id to this command
from a supervisor that holds both in one process). A cancel issued from a
separate CLI invocation against an already-running submit in another
process has no effect; use SIGINT on the submit process instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := models.ParseULID(args[0])
	if err != nil {
		return newExitError(ExitInputInvalid, err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sessions.Cancel(id); err != nil {
		return newExitError(ExitInputInvalid, err)
	}

	fmt.Printf("cancel requested for session %s\n", id)
	return nil
}
