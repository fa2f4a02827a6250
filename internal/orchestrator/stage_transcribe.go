package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

const stageIDTranscribe = "transcribe"

// subtitleExtractorMode is the one mode that mandates a non-empty transcript (§4.1 step 4).
const subtitleExtractorMode = "subtitle_extractor"

type transcribeStage struct {
	deps *Dependencies
}

func newTranscribeStage(deps *Dependencies) Stage {
	return &transcribeStage{deps: deps}
}

func (s *transcribeStage) ID() string   { return stageIDTranscribe }
func (s *transcribeStage) Name() string { return "Transcribe" }

func (s *transcribeStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	if state.AudioPath == "" {
		return s.finishEmpty(state, "no audio available")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.Cancelled, stageIDTranscribe, state.Session.ID.String(), err)
	}
	defer release()

	durationSec := 0.0
	if state.Probe != nil {
		durationSec = state.Probe.DurationSec.Seconds()
	}

	segments, adapterUsed, fellBack, err := s.deps.STT.Transcribe(ctx, state.AudioPath, state.Session.Language, state.Options.STTPreference, durationSec)
	if err != nil {
		if state.Session.Mode == subtitleExtractorMode {
			return nil, pipelineerr.New(pipelineerr.TranscriptionRequired, stageIDTranscribe, state.Session.ID.String(), err)
		}
		return s.finishEmpty(state, err.Error())
	}

	if fellBack {
		s.deps.Trace.For(state.Session.ID).Note(stageIDTranscribe, "STT adapter fell back", map[string]any{"fallback": adapterUsed})
	}

	state.Transcript = normalizeSegments(segments)
	state.STTAdapterUsed = adapterUsed
	return &StageResult{Message: fmt.Sprintf("%d segments via %s", len(state.Transcript), adapterUsed)}, nil
}

func (s *transcribeStage) finishEmpty(state *State, reason string) (*StageResult, error) {
	if state.Session.Mode == subtitleExtractorMode {
		return nil, pipelineerr.Newf(pipelineerr.TranscriptionRequired, stageIDTranscribe, state.Session.ID.String(), "subtitle_extractor requires a transcript: %s", reason)
	}
	s.deps.Trace.For(state.Session.ID).Note(stageIDTranscribe, "empty transcript: "+reason, nil)
	state.Transcript = nil
	return &StageResult{Message: "empty transcript: " + reason}, nil
}

func (s *transcribeStage) acquire(ctx context.Context) (func(), error) {
	if s.deps.Adapters == nil {
		return func() {}, nil
	}
	return s.deps.Adapters.Acquire(ctx, "stt")
}

func (s *transcribeStage) Cleanup(ctx context.Context) error { return nil }

// normalizeSegments enforces the TranscriptSegment invariants (§3, §4.3,
// §8.3): sort by start, merge adjacent segments carrying identical text,
// split overlaps at their midpoint.
func normalizeSegments(segments []capability.TranscriptSegment) []capability.TranscriptSegment {
	if len(segments) == 0 {
		return segments
	}

	sorted := make([]capability.TranscriptSegment, len(segments))
	copy(sorted, segments)
	for i := range sorted {
		// NFC-normalize so adapters returning differently-composed Unicode
		// for the same text are still recognized as identical below.
		sorted[i].Text = norm.NFC.String(sorted[i].Text)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartSec < sorted[j].StartSec })

	merged := make([]capability.TranscriptSegment, 0, len(sorted))
	for _, seg := range sorted {
		if n := len(merged); n > 0 && merged[n-1].Text == seg.Text && seg.StartSec <= merged[n-1].EndSec {
			if seg.EndSec > merged[n-1].EndSec {
				merged[n-1].EndSec = seg.EndSec
			}
			continue
		}
		merged = append(merged, seg)
	}

	for i := 1; i < len(merged); i++ {
		if merged[i].StartSec < merged[i-1].EndSec {
			mid := (merged[i-1].EndSec + merged[i].StartSec) / 2
			merged[i-1].EndSec = mid
			merged[i].StartSec = mid
		}
	}

	return merged
}
