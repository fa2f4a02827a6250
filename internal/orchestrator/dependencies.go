package orchestrator

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/concurrency"
	"github.com/jmylchreest/docweave/internal/config"
	"github.com/jmylchreest/docweave/internal/promptregistry"
	"github.com/jmylchreest/docweave/internal/sessionmanager"
	"github.com/jmylchreest/docweave/internal/trace"
)

// STTSelector implements the fast/accurate/auto selection policy of §4.3,
// trying one adapter and falling back to the other according to
// preference and health, and reporting which adapter actually produced the
// transcript.
type STTSelector interface {
	Transcribe(ctx context.Context, audioPath, languageHint string, pref capability.STTPreference, durationSec float64) (segments []capability.TranscriptSegment, adapterUsed string, fellBack bool, err error)
}

// Dependencies bundles everything stages need, replacing the ancestor
// pipeline framework's IPTV-repository Dependencies with the six capability
// adapters plus the supporting services (§2 dependency order: ArtifactStore,
// MediaProbe, Transcoder, FrameExtractor, STT, RelevanceAnalyzer, Generator,
// PromptRegistry, SessionManager, TraceRecorder, Orchestrator).
type Dependencies struct {
	Probe      capability.MediaProbe
	Transcoder capability.Transcoder
	STT        STTSelector
	Relevance  capability.RelevanceAnalyzer
	Extractor  capability.FrameExtractor
	Generator  capability.Generator

	Artifacts *artifactstore.Store
	Prompts   *promptregistry.Registry
	Sessions  *sessionmanager.Manager
	Trace     *trace.Manager

	Adapters    *concurrency.AdapterSemaphores
	SessionGate *concurrency.SessionGate

	Config *config.Config
	Logger *slog.Logger
}

// Builder provides a fluent interface for constructing a Factory, kept from
// the ancestor pipeline framework's Builder/Factory split.
type Builder struct {
	deps Dependencies
}

// NewBuilder creates a new orchestrator Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithProbe sets the MediaProbe adapter.
func (b *Builder) WithProbe(p capability.MediaProbe) *Builder {
	b.deps.Probe = p
	return b
}

// WithTranscoder sets the Transcoder adapter.
func (b *Builder) WithTranscoder(t capability.Transcoder) *Builder {
	b.deps.Transcoder = t
	return b
}

// WithSTT sets the STT selector.
func (b *Builder) WithSTT(s STTSelector) *Builder {
	b.deps.STT = s
	return b
}

// WithRelevance sets the RelevanceAnalyzer adapter.
func (b *Builder) WithRelevance(r capability.RelevanceAnalyzer) *Builder {
	b.deps.Relevance = r
	return b
}

// WithExtractor sets the FrameExtractor adapter.
func (b *Builder) WithExtractor(e capability.FrameExtractor) *Builder {
	b.deps.Extractor = e
	return b
}

// WithGenerator sets the Generator adapter.
func (b *Builder) WithGenerator(g capability.Generator) *Builder {
	b.deps.Generator = g
	return b
}

// WithArtifacts sets the ArtifactStore.
func (b *Builder) WithArtifacts(a *artifactstore.Store) *Builder {
	b.deps.Artifacts = a
	return b
}

// WithPrompts sets the PromptRegistry.
func (b *Builder) WithPrompts(p *promptregistry.Registry) *Builder {
	b.deps.Prompts = p
	return b
}

// WithSessions sets the SessionManager.
func (b *Builder) WithSessions(s *sessionmanager.Manager) *Builder {
	b.deps.Sessions = s
	return b
}

// WithTrace sets the TraceRecorder manager.
func (b *Builder) WithTrace(t *trace.Manager) *Builder {
	b.deps.Trace = t
	return b
}

// WithAdapterSemaphores sets the per-capability concurrency gates.
func (b *Builder) WithAdapterSemaphores(a *concurrency.AdapterSemaphores) *Builder {
	b.deps.Adapters = a
	return b
}

// WithSessionGate sets the global per-session concurrency cap.
func (b *Builder) WithSessionGate(g *concurrency.SessionGate) *Builder {
	b.deps.SessionGate = g
	return b
}

// WithConfig sets the resolved configuration.
func (b *Builder) WithConfig(c *config.Config) *Builder {
	b.deps.Config = c
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.deps.Logger = l
	return b
}

// Build validates dependencies and returns a Factory.
func (b *Builder) Build() (*Factory, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return NewFactory(&b.deps), nil
}

func (b *Builder) validate() error {
	required := map[string]bool{
		"probe":      b.deps.Probe != nil,
		"transcoder": b.deps.Transcoder != nil,
		"stt":        b.deps.STT != nil,
		"relevance":  b.deps.Relevance != nil,
		"extractor":  b.deps.Extractor != nil,
		"generator":  b.deps.Generator != nil,
		"artifacts":  b.deps.Artifacts != nil,
		"prompts":    b.deps.Prompts != nil,
		"sessions":   b.deps.Sessions != nil,
		"trace":      b.deps.Trace != nil,
		"config":     b.deps.Config != nil,
	}
	for field, ok := range required {
		if !ok {
			return NewConfigurationError(field, field+" dependency is required")
		}
	}
	return nil
}
