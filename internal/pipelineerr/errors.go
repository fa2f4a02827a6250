// Package pipelineerr defines the closed error taxonomy the orchestrator
// classifies adapter failures into at the adapter boundary. Each stage wraps
// an adapter failure into a PipelineError of the matching kind; the
// orchestrator records terminal kinds on the session and wraps any
// unclassified error as Internal.
package pipelineerr

import "fmt"

// Kind is one of the closed set of error classifications.
type Kind string

const (
	InputInvalid          Kind = "InputInvalid"
	InputTooLarge         Kind = "InputTooLarge"
	PreprocessingFailed   Kind = "PreprocessingFailed"
	TranscriptionRequired Kind = "TranscriptionRequired"
	TranscriptionUnavailable Kind = "TranscriptionUnavailable"
	RelevanceUnavailable  Kind = "RelevanceUnavailable"
	FrameExtractionFailed Kind = "FrameExtractionFailed"
	OutputFormatInvalid   Kind = "OutputFormatInvalid"
	StageTimeout          Kind = "StageTimeout"
	Cancelled             Kind = "Cancelled"
	StaleTimeout          Kind = "StaleTimeout"
	Internal              Kind = "Internal"
)

// Terminal reports whether this kind always ends the session (§7).
// TranscriptionUnavailable and RelevanceUnavailable degrade in place and
// never reach this taxonomy as a session-terminating error.
func (k Kind) Terminal() bool {
	switch k {
	case TranscriptionUnavailable, RelevanceUnavailable:
		return false
	default:
		return true
	}
}

// PipelineError is the structured failure record described in §7:
// {kind, message, stage, session_id}.
type PipelineError struct {
	Kind      Kind
	Stage     string
	SessionID string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: stage=%s session=%s: %s", e.Kind, e.Stage, e.SessionID, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: stage=%s session=%s: %v", e.Kind, e.Stage, e.SessionID, e.Err)
	}
	return fmt.Sprintf("%s: stage=%s session=%s", e.Kind, e.Stage, e.SessionID)
}

// Unwrap returns the underlying adapter-native error, if any.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// New classifies err (which may be nil) into a PipelineError of the given kind.
func New(kind Kind, stage, sessionID string, err error) *PipelineError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{Kind: kind, Stage: stage, SessionID: sessionID, Message: msg, Err: err}
}

// Newf classifies a formatted message into a PipelineError of the given kind.
func Newf(kind Kind, stage, sessionID, format string, args ...any) *PipelineError {
	return &PipelineError{Kind: kind, Stage: stage, SessionID: sessionID, Message: fmt.Sprintf(format, args...)}
}
