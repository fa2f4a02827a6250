package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docweave/internal/models"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Print a session's current status and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	sess, err := a.sessions.Get(id)
	if err != nil {
		return newExitError(ExitInputInvalid, err)
	}

	if statusJSON {
		enc, err := json.MarshalIndent(sess, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}

	fmt.Printf("session:  %s\n", sess.ID)
	fmt.Printf("status:   %s\n", sess.Status)
	fmt.Printf("progress: %d%%\n", sess.Progress)
	if sess.StageLabel != "" {
		fmt.Printf("stage:    %s\n", sess.StageLabel)
	}
	if sess.Error != nil {
		fmt.Printf("error:    [%s] %s (stage=%s)\n", sess.Error.Kind, sess.Error.Message, sess.Error.Stage)
	}
	fmt.Printf("updated:  %s\n", sess.LastUpdated.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
