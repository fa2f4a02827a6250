// Package orchestrator executes stages 1-6 for one session (§4.1),
// generalizing the ancestor codebase's stage-interface/state/factory
// pipeline framework (previously `internal/pipeline/core`, an IPTV proxy
// generation pipeline) to the video-to-documentation domain: the stage set
// is fixed by the spec rather than caller-registered, so the Builder/Factory
// machinery now wires capability adapters instead of repositories, and
// Orchestrator.Run replaces Orchestrator.Execute with the session-shaped
// algorithm of §4.1.
package orchestrator

import (
	"time"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
)

// Progress milestones published at stage boundaries (§4.1 "Progress reporting").
const (
	ProgressProbe      = 5
	ProgressProxy      = 15
	ProgressTranscribe = 35
	ProgressRelevance  = 50
	ProgressExtract    = 70
	ProgressGenerate   = 95
	ProgressPersist    = 100
)

// Options are the per-run parameters accepted by Run (§4.1).
type Options struct {
	Mode            string
	Language        string
	STTPreference   capability.STTPreference
	MaxKeyframes    int
	SegmentPipeline bool
	MergeGapSec     float64
	MinSegmentSec   float64
	SegmentChunkSec int
}

// DefaultOptions returns an Options populated with the spec's defaults (§6).
func DefaultOptions() Options {
	return Options{
		STTPreference:   capability.STTPreferenceAuto,
		MaxKeyframes:    25,
		MergeGapSec:     10,
		MinSegmentSec:   5,
		SegmentChunkSec: 30,
	}
}

// Result is the outcome of a successful Run (§4.1).
type Result struct {
	DocPayload         []byte
	ArtifactManifest   map[string]string
	KeyframeManifest   []artifactstore.KeyframeManifestEntry
	TranscriptSegments []capability.TranscriptSegment
	Moments            []capability.RelevantMoment
	STTAdapterUsed     string
	Duration           time.Duration
}
