package orchestrator

import "log/slog"

// Factory builds the single, shared Orchestrator for a process. Unlike the
// ancestor pipeline framework — where Factory.Create produced one
// Orchestrator per proxy, each with its own fixed stage list — docweave's
// stage set is fixed by the spec, so Factory.Create builds it once; Run
// takes the varying part (which session) as a parameter instead.
type Factory struct {
	deps *Dependencies
}

// NewFactory creates a new Factory.
func NewFactory(deps *Dependencies) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{deps: deps}
}

// Create builds the Orchestrator with the fixed six-stage sequence.
func (f *Factory) Create() (*Orchestrator, error) {
	stages := []Stage{
		newProbeStage(f.deps),
		newProxyAudioStage(f.deps),
		newTranscribeStage(f.deps),
		newSelectMomentsStage(f.deps),
		newExtractKeyframesStage(f.deps),
		newGenerateStage(f.deps),
	}
	return newOrchestrator(f.deps, stages), nil
}
