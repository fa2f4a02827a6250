package orchestrator

import "errors"

// Orchestrator-level sentinels, distinct from pipelineerr.Kind: these guard
// Run's own admission and wiring, they never reach a Session's error field.
var (
	// ErrAlreadyRunning indicates a Run is already in flight for this session.
	ErrAlreadyRunning = errors.New("orchestrator: run already in progress for this session")
	// ErrInvalidConfiguration indicates a Dependencies/Builder was incomplete.
	ErrInvalidConfiguration = errors.New("orchestrator: invalid configuration")
)

// ConfigurationError mirrors the ancestor pipeline framework's
// ConfigurationError: a field-scoped description of a missing dependency,
// surfaced by Builder.validate.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return "orchestrator: configuration error for " + e.Field + ": " + e.Message
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}
