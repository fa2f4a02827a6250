package orchestrator

import (
	"context"
	"time"
)

// Stage represents a single step in the video-to-documentation pipeline.
// Kept from the ancestor pipeline framework: each stage receives the shared
// State and produces a StageResult. Cleanup is part of the interface;
// Orchestrator.Run does not call it.
type Stage interface {
	// ID returns a unique identifier for the stage (e.g. "probe").
	ID() string
	// Name returns a human-readable name for the stage (e.g. "Probe").
	Name() string
	// Execute performs the stage's work.
	Execute(ctx context.Context, state *State) (*StageResult, error)
	// Cleanup performs any necessary cleanup after execution.
	Cleanup(ctx context.Context) error
}

// StageResult contains the outcome of a stage execution.
type StageResult struct {
	// Message is an optional summary message, recorded as a trace attr.
	Message string
	// Duration is the execution time, filled in by the Orchestrator.
	Duration time.Duration
}
