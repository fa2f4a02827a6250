package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/orchestrator"
	"github.com/jmylchreest/docweave/internal/session"
	"github.com/jmylchreest/docweave/internal/sessionmanager"
)

var submitFlags struct {
	mode            string
	title           string
	language        string
	sttPreference   string
	source          string
	maxKeyframes    int
	segmentPipeline bool
	mergeGapSec     float64
	minSegmentSec   float64
	segmentChunkSec int
	jsonOutput      bool
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a video for documentation generation and run it to completion",
	Long: `submit creates a session and drives it synchronously through Probe,
Proxy+Audio, Transcribe, Select Moments, Extract Keyframes, and Generate.
It blocks until the session reaches a terminal state or SIGINT requests
cancellation. Remote sources must already be fetched to a local path;
docweave does not perform network fetches itself.`,
	RunE: runSubmit,
}

func init() {
	f := submitCmd.Flags()
	f.StringVar(&submitFlags.mode, "mode", "", "documentation mode (required)")
	f.StringVar(&submitFlags.title, "title", "", "session title")
	f.StringVar(&submitFlags.language, "language", "", "source language hint, BCP-47")
	f.StringVar(&submitFlags.sttPreference, "stt-preference", string(capability.STTPreferenceAuto), "auto|fast|accurate")
	f.StringVar(&submitFlags.source, "source", "", "path to a local video file (required)")
	f.IntVar(&submitFlags.maxKeyframes, "max-keyframes", 0, "keyframe budget (0 uses the default)")
	f.BoolVar(&submitFlags.segmentPipeline, "segment", false, "run select+extract in chunked segments")
	f.Float64Var(&submitFlags.mergeGapSec, "merge-gap-sec", 0, "gap, in seconds, under which adjacent moments merge (0 uses the default)")
	f.Float64Var(&submitFlags.minSegmentSec, "min-segment-sec", 0, "minimum moment duration in seconds (0 uses the default)")
	f.IntVar(&submitFlags.segmentChunkSec, "segment-chunk-sec", 0, "chunk size in seconds when --segment is set (0 uses the default)")
	f.BoolVar(&submitFlags.jsonOutput, "json", false, "print the result as JSON")
	_ = submitCmd.MarkFlagFilename("source")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	if submitFlags.mode == "" {
		return newExitError(ExitInputInvalid, fmt.Errorf("--mode is required"))
	}
	if submitFlags.source == "" {
		return newExitError(ExitInputInvalid, fmt.Errorf("--source is required"))
	}
	if _, err := os.Stat(submitFlags.source); err != nil {
		return newExitError(ExitInputInvalid, fmt.Errorf("--source: %w", err))
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	meta := sessionmanager.Metadata{
		Mode:          submitFlags.mode,
		Title:         submitFlags.title,
		Language:      submitFlags.language,
		STTPreference: capability.STTPreference(submitFlags.sttPreference),
		Source:        session.Source{LocalPath: submitFlags.source},
	}
	sess, err := a.sessions.Create(meta)
	if err != nil {
		return newExitError(ExitInputInvalid, err)
	}
	a.logger.Info("session created", "session_id", sess.ID.String(), "mode", sess.Mode)

	orch, err := a.factory.Create()
	if err != nil {
		return fmt.Errorf("building orchestrator: %w", err)
	}

	result, err := orch.Run(ctx, sess.ID, submitFlags.source, optionsFromFlags())
	if err != nil {
		return newExitError(exitCodeFor(err), fmt.Errorf("session %s: %w", sess.ID, err))
	}

	return printSubmitResult(sess.ID.String(), result)
}

func optionsFromFlags() orchestrator.Options {
	opts := orchestrator.DefaultOptions()
	opts.Mode = submitFlags.mode
	opts.Language = submitFlags.language
	opts.STTPreference = capability.STTPreference(submitFlags.sttPreference)
	opts.SegmentPipeline = submitFlags.segmentPipeline
	if submitFlags.maxKeyframes > 0 {
		opts.MaxKeyframes = submitFlags.maxKeyframes
	}
	if submitFlags.mergeGapSec > 0 {
		opts.MergeGapSec = submitFlags.mergeGapSec
	}
	if submitFlags.minSegmentSec > 0 {
		opts.MinSegmentSec = submitFlags.minSegmentSec
	}
	if submitFlags.segmentChunkSec > 0 {
		opts.SegmentChunkSec = submitFlags.segmentChunkSec
	}
	return opts
}

func printSubmitResult(sessionID string, result *orchestrator.Result) error {
	if submitFlags.jsonOutput {
		out := struct {
			SessionID  string `json:"session_id"`
			STTAdapter string `json:"stt_adapter_used"`
			Moments    int    `json:"moments"`
			Keyframes  int    `json:"keyframes"`
			Duration   string `json:"duration"`
			DocBytes   int    `json:"doc_bytes"`
		}{
			SessionID:  sessionID,
			STTAdapter: result.STTAdapterUsed,
			Moments:    len(result.Moments),
			Keyframes:  len(result.KeyframeManifest),
			Duration:   result.Duration.String(),
			DocBytes:   len(result.DocPayload),
		}
		enc, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}

	fmt.Printf("session %s completed in %s\n", sessionID, result.Duration)
	fmt.Printf("  stt adapter:  %s\n", result.STTAdapterUsed)
	fmt.Printf("  moments:      %d\n", len(result.Moments))
	fmt.Printf("  keyframes:    %d\n", len(result.KeyframeManifest))
	fmt.Printf("  document:     %d bytes\n", len(result.DocPayload))
	return nil
}
