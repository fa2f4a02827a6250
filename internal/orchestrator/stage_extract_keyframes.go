package orchestrator

import (
	"context"
	"fmt"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

const stageIDExtractKeyframes = "extract_keyframes"

type extractKeyframesStage struct {
	deps *Dependencies
}

func newExtractKeyframesStage(deps *Dependencies) Stage {
	return &extractKeyframesStage{deps: deps}
}

func (s *extractKeyframesStage) ID() string   { return stageIDExtractKeyframes }
func (s *extractKeyframesStage) Name() string { return "Extract Keyframes" }

// Execute allocates keyframes to moments proportional to their length, capped
// at MaxKeyframes total, then extracts them at full resolution from the
// original source (§4.1 step 6). A failed extraction is retried once at
// halved density before raising FrameExtractionFailed.
func (s *extractKeyframesStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	framesDir, err := s.deps.Artifacts.Path(state.RootDir, artifactstore.FramesDir)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.FrameExtractionFailed, stageIDExtractKeyframes, state.Session.ID.String(), err)
	}

	timestamps := allocateTimestamps(state.Moments, state.Options.MaxKeyframes)
	if len(timestamps) == 0 {
		return &StageResult{Message: "no keyframes allocated"}, nil
	}

	keyframes, err := s.deps.Extractor.Extract(ctx, state.SourcePath, framesDir, timestamps)
	if err != nil {
		halved := allocateTimestamps(state.Moments, maxInt(1, state.Options.MaxKeyframes/2))
		s.deps.Trace.For(state.Session.ID).Note(stageIDExtractKeyframes, "retrying at halved density", map[string]any{"error": err.Error()})
		keyframes, err = s.deps.Extractor.Extract(ctx, state.SourcePath, framesDir, halved)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.FrameExtractionFailed, stageIDExtractKeyframes, state.Session.ID.String(), err)
		}
	}

	state.Keyframes = keyframes
	return &StageResult{Message: fmt.Sprintf("%d keyframes", len(keyframes))}, nil
}

func (s *extractKeyframesStage) Cleanup(ctx context.Context) error { return nil }

// allocateTimestamps distributes up to maxKeyframes timestamps across
// moments, proportional to each moment's duration, giving each moment at
// least one timestamp until the budget is spent; moments after that point
// get none.
func allocateTimestamps(moments []capability.RelevantMoment, maxKeyframes int) []float64 {
	if len(moments) == 0 || maxKeyframes <= 0 {
		return nil
	}

	total := 0.0
	for _, m := range moments {
		total += m.EndSec - m.StartSec
	}
	if total <= 0 {
		return nil
	}

	timestamps := make([]float64, 0, maxKeyframes)
	remaining := maxKeyframes
	for i, m := range moments {
		span := m.EndSec - m.StartSec
		share := int(float64(maxKeyframes) * (span / total))
		if share < 1 {
			share = 1
		}
		if i == len(moments)-1 {
			share = remaining
		}
		if share > remaining {
			share = remaining
		}
		if share <= 0 {
			continue
		}
		step := span / float64(share+1)
		for n := 1; n <= share; n++ {
			timestamps = append(timestamps, m.StartSec+step*float64(n))
		}
		remaining -= share
		if remaining <= 0 {
			break
		}
	}
	return timestamps
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
