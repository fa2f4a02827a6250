package capability

import (
	"context"
	"errors"
)

// ErrNoAudioTrack is returned by Transcoder.ExtractAudio when the source
// has no audio track; not a failure, callers proceed with an empty
// transcript (§4.1 step 3).
var ErrNoAudioTrack = errors.New("source has no audio track")

// MediaProbe inspects a source file without decoding its full contents.
type MediaProbe interface {
	Probe(ctx context.Context, sourcePath string) (*ProbeResult, error)
}

// Transcoder produces the cheap analysis proxy consumed by stages 4 and 6:
// a low-fps, low-resolution video and a mono WAV extraction of its audio.
type Transcoder interface {
	// BuildProxy writes a 1-fps, long-edge-limited proxy video to proxyPath.
	BuildProxy(ctx context.Context, sourcePath, proxyPath string, fps, longEdgePx int) error
	// ExtractAudio writes a 16kHz mono WAV of the source's audio to audioPath.
	// A source with no audio track is not an error; implementations report
	// it via ErrNoAudioTrack so the orchestrator can proceed with an empty
	// transcript per §4.1 step 3.
	ExtractAudio(ctx context.Context, sourcePath, audioPath string) error
}

// STT transcribes an audio file into ordered, non-overlapping segments.
type STT interface {
	// Name identifies the adapter for trace attrs and Session.STTAdapterUsed (§4.3, §6).
	Name() string
	// Available reports whether the adapter is currently usable (§4.3 health).
	Available(ctx context.Context) bool
	Transcribe(ctx context.Context, audioPath, languageHint string) ([]TranscriptSegment, error)
}

// RelevanceAnalyzer asks an LLM to locate semantically relevant moments.
type RelevanceAnalyzer interface {
	Analyze(ctx context.Context, proxyVideoPath string, transcript []TranscriptSegment, hintKeywords []string, prompt *PromptRecord) ([]RelevantMoment, error)
}

// FrameExtractor pulls full-resolution stills from the original source.
type FrameExtractor interface {
	// Extract returns at most one Keyframe per requested timestamp, in the
	// same order, after clamping to [0, duration); frames dropped by the
	// optional perceptual dedup are omitted.
	Extract(ctx context.Context, sourcePath string, outDir string, timestampsSec []float64) ([]Keyframe, error)
}

// Generator synthesizes the final mode-specific document.
type Generator interface {
	Generate(ctx context.Context, prompt *PromptRecord, keyframes []Keyframe, transcript []TranscriptSegment, vars map[string]string, format OutputFormat) ([]byte, error)
}
