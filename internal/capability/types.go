// Package capability defines the narrow interfaces the orchestrator depends
// on for each pipeline stage (MediaProbe, Transcoder, STT, RelevanceAnalyzer,
// FrameExtractor, Generator) along with the value types that flow between
// them. Concrete adapters live in sibling packages (ffmpeg, stt, llm); this
// package only knows about contracts, mirroring the small-interface style of
// an ingestion-handler boundary (Type()-discriminated, context-aware, one
// verb per capability).
package capability

import "time"

// ProbeResult is what MediaProbe reports for a source file.
type ProbeResult struct {
	DurationSec time.Duration
	Width       int
	Height      int
	AudioPresent bool
	Container   string
}

// TranscriptSegment is one ordered span of recognized speech.
type TranscriptSegment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
	Speaker  string  `json:"speaker,omitempty"`
}

// RelevantMoment is an interval the RelevanceAnalyzer deems worth visualizing.
type RelevantMoment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Reason   string  `json:"reason"`
}

// Keyframe is a still image extracted from the original high-resolution source.
type Keyframe struct {
	TimestampSec float64         `json:"timestamp_sec"`
	Path         string          `json:"path"`
	Label        string          `json:"label,omitempty"`
	JSONSidecar  map[string]any  `json:"json_sidecar,omitempty"`
}

// OutputFormat is the Generator's declared payload shape.
type OutputFormat string

const (
	OutputFormatMarkdown OutputFormat = "markdown"
	OutputFormatJSON     OutputFormat = "json"
)

// ModelPreference selects between a cheap/fast model and a higher-quality one.
type ModelPreference string

const (
	ModelPreferenceFast    ModelPreference = "fast"
	ModelPreferenceQuality ModelPreference = "quality"
)

// PromptRecord is an immutable, mode-keyed instruction set loaded by the
// PromptRegistry. Once returned from Load/Get it must never be mutated by a
// caller; Interpolate returns new strings rather than editing the record.
type PromptRecord struct {
	ID                string          `yaml:"id" json:"id"`
	DisplayName       string          `yaml:"name" json:"display_name"`
	Description       string          `yaml:"description" json:"description"`
	ModelPreference   ModelPreference `yaml:"model" json:"model_preference"`
	SystemInstruction string          `yaml:"system_instruction" json:"system_instruction"`
	OutputFormat      OutputFormat    `yaml:"output_format" json:"output_format"`
	Guidelines        []string        `yaml:"guidelines" json:"guidelines"`
}

// STTPreference selects which transcriber(s) to try and in what order (§4.3).
type STTPreference string

const (
	STTPreferenceAuto      STTPreference = "auto"
	STTPreferenceFast      STTPreference = "fast"
	STTPreferenceAccurate  STTPreference = "accurate"
)
