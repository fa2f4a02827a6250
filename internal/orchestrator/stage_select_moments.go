package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

const stageIDSelectMoments = "select_moments"

// relevancePromptID is the PromptRecord consumed by stage 4 (§4.1 step 5).
const relevancePromptID = "audio_filter"

type selectMomentsStage struct {
	deps *Dependencies
}

func newSelectMomentsStage(deps *Dependencies) Stage {
	return &selectMomentsStage{deps: deps}
}

func (s *selectMomentsStage) ID() string   { return stageIDSelectMoments }
func (s *selectMomentsStage) Name() string { return "Select Moments" }

func (s *selectMomentsStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.Cancelled, stageIDSelectMoments, state.Session.ID.String(), err)
	}
	defer release()

	prompt, err := s.deps.Prompts.Get(relevancePromptID)
	if err != nil {
		prompt = nil // analyzer may have a built-in default; absence of a prompt record is not fatal here
	}

	duration := 0.0
	if state.Probe != nil {
		duration = state.Probe.DurationSec.Seconds()
	}

	moments, err := s.deps.Relevance.Analyze(ctx, state.ProxyPath, state.Transcript, nil, prompt)
	if err != nil || len(moments) == 0 {
		s.deps.Trace.For(state.Session.ID).Note(stageIDSelectMoments, "relevance analyzer degraded to whole-video moment", nil)
		state.Moments = []capability.RelevantMoment{{StartSec: 0, EndSec: duration, Reason: "fallback"}}
		return &StageResult{Message: "degenerate: whole-video moment"}, nil
	}

	state.Moments = normalizeMoments(moments, duration, state.Options.MergeGapSec, state.Options.MinSegmentSec)
	if len(state.Moments) == 0 {
		state.Moments = []capability.RelevantMoment{{StartSec: 0, EndSec: duration, Reason: "fallback"}}
	}
	return &StageResult{Message: fmt.Sprintf("%d moments", len(state.Moments))}, nil
}

func (s *selectMomentsStage) acquire(ctx context.Context) (func(), error) {
	if s.deps.Adapters == nil {
		return func() {}, nil
	}
	return s.deps.Adapters.Acquire(ctx, "llm_relevance")
}

func (s *selectMomentsStage) Cleanup(ctx context.Context) error { return nil }

// normalizeMoments sorts, clamps to [0, duration], drops sub-minimum spans,
// and merges moments whose gap is below mergeGapSec (§3 RelevantMoment, §4.1 step 5).
func normalizeMoments(moments []capability.RelevantMoment, duration, mergeGapSec, minSegmentSec float64) []capability.RelevantMoment {
	clamped := make([]capability.RelevantMoment, 0, len(moments))
	for _, m := range moments {
		if m.StartSec < 0 {
			m.StartSec = 0
		}
		if duration > 0 && m.EndSec > duration {
			m.EndSec = duration
		}
		if m.StartSec >= m.EndSec {
			continue
		}
		clamped = append(clamped, m)
	}

	sort.Slice(clamped, func(i, j int) bool { return clamped[i].StartSec < clamped[j].StartSec })

	merged := make([]capability.RelevantMoment, 0, len(clamped))
	for _, m := range clamped {
		if n := len(merged); n > 0 && m.StartSec-merged[n-1].EndSec < mergeGapSec {
			if m.EndSec > merged[n-1].EndSec {
				merged[n-1].EndSec = m.EndSec
			}
			continue
		}
		merged = append(merged, m)
	}

	out := merged[:0]
	for _, m := range merged {
		if m.EndSec-m.StartSec >= minSegmentSec {
			out = append(out, m)
		}
	}
	return out
}
