// Package cmd implements the CLI commands for docweave.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/docweave/internal/version"
)

// Standard exit codes for a CLI host driving the pipeline (§6 "Exit
// behavior"): the core itself has no process exit codes when embedded as a
// library, but a CLI caller must translate its closed error taxonomy into
// one.
const (
	ExitSuccess        = 0
	ExitUsage          = 1
	ExitInputInvalid   = 2
	ExitPipelineFailed = 3
	ExitCancelled      = 4
	ExitTimeout        = 5
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "docweave",
	Short:   "Video-to-documentation pipeline orchestrator",
	Version: version.Short(),
	Long: `docweave turns a video into mode-specific documentation: it probes the
source, builds a cheap analysis proxy, transcribes the audio, asks an LLM to
find the moments worth illustrating, extracts full-resolution keyframes at
those moments, and runs a second LLM pass to synthesize the final document.

Sessions are submitted, polled, and retrieved through local subcommands that
drive the pipeline library directly against a local data directory.`,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			fmt.Fprintln(os.Stderr, "Error:", exitErr.Unwrap())
			return exitErr.code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return ExitUsage
	}
	return ExitSuccess
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./configs, /etc/docweave, $HOME/.docweave)")
}

// exitError carries the process exit code a subcommand wants Execute to
// return, letting RunE keep returning plain errors that cobra still prints
// and propagates normally.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, err error) error {
	return &exitError{code: code, err: err}
}
