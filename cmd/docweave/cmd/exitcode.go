package cmd

import (
	"errors"

	"github.com/jmylchreest/docweave/internal/orchestrator"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

// exitCodeFor classifies a Run error into the standard exit codes named in
// §6 "Exit behavior": input invalid, pipeline failed, cancelled, timeout.
// Errors that never reach the orchestrator (config, missing session) are
// not pipeline-domain failures and are left to the default usage code.
func exitCodeFor(err error) int {
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		return ExitPipelineFailed
	}

	var perr *pipelineerr.PipelineError
	if !errors.As(err, &perr) {
		return ExitPipelineFailed
	}

	switch perr.Kind {
	case pipelineerr.InputInvalid, pipelineerr.InputTooLarge:
		return ExitInputInvalid
	case pipelineerr.Cancelled:
		return ExitCancelled
	case pipelineerr.StageTimeout:
		return ExitTimeout
	default:
		return ExitPipelineFailed
	}
}
