package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docweave/internal/models"
	"github.com/jmylchreest/docweave/internal/session"
)

var resultFlags struct {
	out        string
	jsonOutput bool
}

var resultCmd = &cobra.Command{
	Use:   "result <session-id>",
	Short: "Retrieve the generated document and artifacts of a completed session",
	Args:  cobra.ExactArgs(1),
	RunE:  runResult,
}

func init() {
	resultCmd.Flags().StringVar(&resultFlags.out, "out", "", "write the document to this path instead of stdout")
	resultCmd.Flags().BoolVar(&resultFlags.jsonOutput, "json", false, "print transcript, moments, and keyframe metadata as JSON instead of the document")
	rootCmd.AddCommand(resultCmd)
}

func runResult(cmd *cobra.Command, args []string) error {
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

	switch sess.Status {
	case session.StatusCompleted:
		// fall through
	case session.StatusFailed, session.StatusCancelled:
		return newExitError(ExitPipelineFailed, fmt.Errorf("session %s is %s, no result available", id, sess.Status))
	default:
		return newExitError(ExitInputInvalid, fmt.Errorf("session %s is still %s", id, sess.Status))
	}

	if resultFlags.jsonOutput {
		out := struct {
			SessionID          string                      `json:"session_id"`
			STTAdapterUsed     string                      `json:"stt_adapter_used"`
			TranscriptSegments any                         `json:"transcript_segments"`
			Keyframes          any                         `json:"keyframes"`
			ArtifactPaths      map[string]string           `json:"artifact_paths"`
		}{
			SessionID:          sess.ID.String(),
			STTAdapterUsed:     sess.STTAdapterUsed,
			TranscriptSegments: sess.TranscriptSegments,
			Keyframes:          sess.Keyframes,
			ArtifactPaths:      sess.ArtifactPaths,
		}
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}

	if resultFlags.out != "" {
		if err := os.WriteFile(resultFlags.out, sess.DocPayload, 0o644); err != nil {
			return fmt.Errorf("writing document: %w", err)
		}
		fmt.Printf("wrote %d bytes to %s\n", len(sess.DocPayload), resultFlags.out)
		return nil
	}

	_, err = os.Stdout.Write(sess.DocPayload)
	return err
}
