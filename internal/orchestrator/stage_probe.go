package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

const stageIDProbe = "probe"

type probeStage struct {
	deps *Dependencies
}

func newProbeStage(deps *Dependencies) Stage {
	return &probeStage{deps: deps}
}

func (s *probeStage) ID() string   { return stageIDProbe }
func (s *probeStage) Name() string { return "Probe" }

// Execute queries MediaProbe and enforces the duration bounds of §4.1 step 2.
func (s *probeStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	result, err := s.deps.Probe.Probe(ctx, state.SourcePath)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.InputInvalid, stageIDProbe, state.Session.ID.String(), err)
	}

	maxDuration := time.Duration(s.deps.Config.Pipeline.MaxDurationSec) * time.Second
	if result.DurationSec > maxDuration {
		return nil, pipelineerr.Newf(pipelineerr.InputTooLarge, stageIDProbe, state.Session.ID.String(),
			"duration %s exceeds max_duration_sec %s", result.DurationSec, maxDuration)
	}
	if result.DurationSec < time.Second {
		return nil, pipelineerr.Newf(pipelineerr.InputInvalid, stageIDProbe, state.Session.ID.String(),
			"duration %s below minimum of 1s", result.DurationSec)
	}

	state.Probe = result
	return &StageResult{Message: fmt.Sprintf("duration=%s %dx%d", result.DurationSec, result.Width, result.Height)}, nil
}

func (s *probeStage) Cleanup(ctx context.Context) error { return nil }
