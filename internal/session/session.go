// Package session defines the Session record (§3) and its lifecycle state
// machine. Session is mutated only through a SessionManager; this file
// carries the state, its invariants, and the transition methods, the way
// the ancestor codebase's job record carried status transitions alongside
// its own data.
package session

import (
	"time"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/models"
)

// Status is one node of the draft→queued→running→{completed|failed|cancelled} DAG (§3).
type Status string

const (
	StatusDraft     Status = "draft"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// STTPreference mirrors capability.STTPreference for the session-facing field.
type STTPreference = capability.STTPreference

// Source describes where the input video comes from: either a local path
// already on disk, or a remote descriptor the caller expects docweave to
// fetch before stage 1 begins.
type Source struct {
	LocalPath string `json:"local_path,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
}

// SessionError is the structured failure record of §7: {kind, message, stage, session_id}.
type SessionError struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Stage     string `json:"stage"`
	SessionID string `json:"session_id"`
}

// Session is the top-level unit of work (§3).
type Session struct {
	ID        models.ULID `json:"id"`
	CreatedAt time.Time   `json:"created_at"`

	Mode          string        `json:"mode"`
	Title         string        `json:"title"`
	Language      string        `json:"language,omitempty"`
	STTPreference STTPreference `json:"stt_preference"`
	Source        Source        `json:"source"`

	Status      Status `json:"status"`
	Progress    int    `json:"progress"`
	StageLabel  string `json:"stage_label,omitempty"`
	Error       *SessionError `json:"error,omitempty"`
	LastUpdated time.Time     `json:"last_updated"`

	ArtifactPaths      map[string]string              `json:"artifact_paths,omitempty"`
	DocPayload         []byte                          `json:"doc_payload,omitempty"`
	TranscriptSegments []capability.TranscriptSegment `json:"transcript_segments,omitempty"`
	Keyframes          []capability.Keyframe          `json:"keyframes,omitempty"`

	// STTAdapterUsed records which transcriber actually produced the
	// transcript (§6 GetResult), distinct from the preference requested.
	STTAdapterUsed string `json:"stt_adapter_used,omitempty"`

	// cancelRequested is the set-once flag observed by the Orchestrator at
	// stage boundaries and suspension points (§5).
	cancelRequested bool
}

// New creates a draft session. Metadata supplies mode, title, language, source.
func New(mode, title, language string, pref STTPreference, source Source) *Session {
	now := models.Now()
	return &Session{
		ID:            models.NewULID(),
		CreatedAt:     now,
		Mode:          mode,
		Title:         title,
		Language:      language,
		STTPreference: pref,
		Source:        source,
		Status:        StatusDraft,
		Progress:      0,
		LastUpdated:   now,
		ArtifactPaths: map[string]string{},
	}
}

// IsTerminal reports whether status is one SessionManager no longer accepts
// UpdateProgress calls for (testable property 1).
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsRunning reports whether the session is actively being orchestrated.
func (s *Session) IsRunning() bool {
	return s.Status == StatusRunning
}

// RequestCancel sets the cancellation flag observed at the next checkpoint.
func (s *Session) RequestCancel() {
	s.cancelRequested = true
}

// CancelRequested reports whether a cancellation has been requested.
func (s *Session) CancelRequested() bool {
	return s.cancelRequested
}

// touch advances last_updated; called on every mutation (§3 invariant).
func (s *Session) touch() {
	s.LastUpdated = models.Now()
}

// Enqueue transitions draft → queued.
func (s *Session) Enqueue() {
	s.Status = StatusQueued
	s.touch()
}

// MarkRunning transitions draft|queued → running. Idempotent within running.
func (s *Session) MarkRunning() {
	if s.Status == StatusRunning {
		return
	}
	s.Status = StatusRunning
	s.touch()
}

// SetProgress updates progress and stage_label. Callers must only invoke
// this while status=running; progress must be non-decreasing (§3, §8.2).
func (s *Session) SetProgress(progress int, stageLabel string) {
	if progress > s.Progress {
		s.Progress = progress
	}
	if stageLabel != "" {
		s.StageLabel = stageLabel
	}
	s.touch()
}

// MarkCompleted transitions running → completed with progress pinned to 100
// (§3 invariant: progress=100 iff status=completed).
func (s *Session) MarkCompleted(doc []byte) {
	s.Status = StatusCompleted
	s.Progress = 100
	s.DocPayload = doc
	s.Error = nil
	s.touch()
}

// MarkFailed transitions running → failed with a structured error (§7).
func (s *Session) MarkFailed(kind, message, stage string) {
	s.Status = StatusFailed
	s.Error = &SessionError{Kind: kind, Message: message, Stage: stage, SessionID: s.ID.String()}
	s.touch()
}

// MarkCancelled transitions running → cancelled (§8.7).
func (s *Session) MarkCancelled(stage string) {
	s.Status = StatusCancelled
	s.Error = &SessionError{Kind: "Cancelled", Message: "cancellation requested", Stage: stage, SessionID: s.ID.String()}
	s.touch()
}

// Stale reports whether a running session's last_updated predates now by
// more than staleAfter, the zombie-sweep predicate of §4.2/§8.8.
func (s *Session) Stale(now time.Time, staleAfter time.Duration) bool {
	return s.Status == StatusRunning && now.Sub(s.LastUpdated) > staleAfter
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// manager's lock: slice and map fields are copied so later mutations of the
// cached original never leak into a returned snapshot.
func (s *Session) Clone() *Session {
	out := *s
	if s.ArtifactPaths != nil {
		out.ArtifactPaths = make(map[string]string, len(s.ArtifactPaths))
		for k, v := range s.ArtifactPaths {
			out.ArtifactPaths[k] = v
		}
	}
	if s.DocPayload != nil {
		out.DocPayload = append([]byte(nil), s.DocPayload...)
	}
	if s.TranscriptSegments != nil {
		out.TranscriptSegments = append([]capability.TranscriptSegment(nil), s.TranscriptSegments...)
	}
	if s.Keyframes != nil {
		out.Keyframes = append([]capability.Keyframe(nil), s.Keyframes...)
	}
	if s.Error != nil {
		errCopy := *s.Error
		out.Error = &errCopy
	}
	return &out
}

// Summary is the compact projection returned by ListSessions (§6).
type Summary struct {
	ID         models.ULID `json:"id"`
	Mode       string      `json:"mode"`
	Title      string      `json:"title"`
	Status     Status      `json:"status"`
	Progress   int         `json:"progress"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ToSummary projects a Session into its list-view Summary.
func (s *Session) ToSummary() Summary {
	return Summary{ID: s.ID, Mode: s.Mode, Title: s.Title, Status: s.Status, Progress: s.Progress, CreatedAt: s.CreatedAt}
}
