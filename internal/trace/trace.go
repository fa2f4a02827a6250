// Package trace implements the TraceRecorder of §4.9: an append-only JSONL
// writer of TraceEvents, opened lazily per session and closed once the
// session reaches a terminal state. Write failures never propagate to the
// orchestrator; they fall back to a secondary slog record, the same
// best-effort-logging discipline the ancestor codebase uses for its own
// in-memory log-streaming service, generalized from a ring buffer broadcast
// to callers into a durable per-session file.
package trace

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/models"
)

// Kind is one of the four TraceEvent kinds (§3).
type Kind string

const (
	KindStart Kind = "start"
	KindEnd   Kind = "end"
	KindError Kind = "error"
	KindNote  Kind = "note"
)

// Event is one line of the trace file (§6 trace file format). CorrelationID
// is an ephemeral per-event id distinct from the durable session ULID,
// letting consumers join a start/end/error triple across concurrent chunk
// processing without relying on write order.
type Event struct {
	TS            time.Time      `json:"ts"`
	SessionID     string         `json:"session_id"`
	CorrelationID string         `json:"correlation_id"`
	Stage         string         `json:"stage"`
	Kind          Kind           `json:"kind"`
	Attrs         map[string]any `json:"attrs,omitempty"`
	DurationMs    *int64         `json:"duration_ms,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Recorder appends Events for one session. Not safe for concurrent Close
// racing with Write, but Write itself is safe for concurrent callers within
// a session (adapters are called sequentially within a session per §5, but
// trace notes may still arrive from a zombie sweep running concurrently).
type Recorder struct {
	store  *artifactstore.Store
	dir    string
	logger *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Manager lazily opens one Recorder per session and closes it on terminal state.
type Manager struct {
	store  *artifactstore.Store
	logger *slog.Logger

	mu        sync.Mutex
	recorders map[string]*Recorder
}

// NewManager constructs a trace Manager backed by store.
func NewManager(store *artifactstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:     store,
		logger:    logger.With("component", "trace"),
		recorders: make(map[string]*Recorder),
	}
}

// For returns (opening if necessary) the Recorder for sessionID.
func (m *Manager) For(sessionID models.ULID) *Recorder {
	key := sessionID.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recorders[key]; ok {
		return r
	}
	r := &Recorder{store: m.store, dir: key, logger: m.logger}
	m.recorders[key] = r
	return r
}

// Close closes and forgets the Recorder for sessionID, called once the
// session reaches a terminal state.
func (m *Manager) Close(sessionID models.ULID) {
	key := sessionID.String()
	m.mu.Lock()
	r, ok := m.recorders[key]
	delete(m.recorders, key)
	m.mu.Unlock()
	if ok {
		r.close()
	}
}

func (r *Recorder) open() error {
	if r.file != nil {
		return nil
	}
	if _, err := r.store.Root(models.MustParseULID(r.dir)); err != nil {
		return err
	}
	path, err := r.store.Path(r.dir, artifactstore.Trace)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func (r *Recorder) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
	}
}

// Write appends one event. Failures are logged, never returned: write
// failures never propagate to the orchestrator (§4.9).
func (r *Recorder) Write(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	evt.SessionID = r.dir
	if evt.CorrelationID == "" {
		evt.CorrelationID = uuid.NewString()
	}

	if err := r.open(); err != nil {
		r.logger.Warn("trace: failed to open trace file", "session_id", r.dir, "error", err)
		return
	}

	line, err := json.Marshal(evt)
	if err != nil {
		r.logger.Warn("trace: failed to marshal event", "session_id", r.dir, "error", err)
		return
	}
	line = append(line, '\n')
	if _, err := r.file.Write(line); err != nil {
		r.logger.Warn("trace: failed to append event", "session_id", r.dir, "error", err)
	}
}

// Start records a start event for stage.
func (r *Recorder) Start(stage string, attrs map[string]any) {
	r.Write(Event{Stage: stage, Kind: KindStart, Attrs: attrs})
}

// End records an end event for stage with its duration.
func (r *Recorder) End(stage string, d time.Duration, attrs map[string]any) {
	ms := d.Milliseconds()
	r.Write(Event{Stage: stage, Kind: KindEnd, Attrs: attrs, DurationMs: &ms})
}

// ErrorEvent records an error event for stage.
func (r *Recorder) ErrorEvent(stage string, err error, attrs map[string]any) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.Write(Event{Stage: stage, Kind: KindError, Attrs: attrs, Error: msg})
}

// Note records a degradation or informational note for stage.
func (r *Recorder) Note(stage, message string, attrs map[string]any) {
	if attrs == nil {
		attrs = map[string]any{}
	}
	attrs["note"] = message
	r.Write(Event{Stage: stage, Kind: KindNote, Attrs: attrs})
}
