// Package sessionmanager is the sole authority for Session state (§4.2).
// It keeps an in-memory cache guarded by per-id locks for exclusive writes
// with a shared read path, write-through persistence to the ArtifactStore,
// and a periodic zombie sweep — the same map-plus-mutex-plus-broadcast shape
// the ancestor codebase uses for its own operation-tracking service,
// generalized from a progress dashboard to a durable session record.
package sessionmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/models"
	"github.com/jmylchreest/docweave/internal/session"
)

var (
	// ErrSessionNotFound is returned when no session exists for an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionIDInUse is returned when Create is given an id already in use.
	ErrSessionIDInUse = errors.New("session id already in use")
)

// Metadata supplies the fields Create needs beyond a fresh id.
type Metadata struct {
	Mode          string
	Title         string
	Language      string
	STTPreference session.STTPreference
	Source        session.Source
}

// entry pairs a cached session with its own mutex, giving per-id exclusive
// writes without serializing operations across unrelated sessions (§5).
type entry struct {
	mu sync.Mutex
	s  *session.Session
}

// Indexer mirrors a session into a queryable secondary index on every
// mutation. sessionstore.Store implements this; it is optional so unit
// tests and callers that don't need SQL listing can leave it nil.
type Indexer interface {
	Upsert(ctx context.Context, s *session.Session) error
}

// Manager is the SessionManager of §4.2.
type Manager struct {
	store  *artifactstore.Store
	logger *slog.Logger
	index  Indexer

	mu      sync.RWMutex
	entries map[string]*entry

	staleAfter    time.Duration
	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// New constructs a Manager backed by store, with the zombie-sweep
// parameters from configuration (§6 stale_session_sec, zombie sweep interval).
func New(store *artifactstore.Store, logger *slog.Logger, staleAfter, sweepInterval time.Duration) *Manager {
	return &Manager{
		store:         store,
		logger:        logger.With("component", "sessionmanager"),
		entries:       make(map[string]*entry),
		staleAfter:    staleAfter,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
}

// Create allocates a new draft session. The id is always freshly generated
// so ErrSessionIDInUse cannot occur via the public API, but the check stays
// to keep Create safe if callers ever pre-seed an id.
func (m *Manager) Create(meta Metadata) (*session.Session, error) {
	s := session.New(meta.Mode, meta.Title, meta.Language, meta.STTPreference, meta.Source)

	m.mu.Lock()
	if _, exists := m.entries[s.ID.String()]; exists {
		m.mu.Unlock()
		return nil, ErrSessionIDInUse
	}
	m.entries[s.ID.String()] = &entry{s: s}
	m.mu.Unlock()

	if err := m.persist(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Claim transitions draft|queued → running. Idempotent within running.
func (m *Manager) Claim(id models.ULID) (*session.Session, error) {
	return m.mutate(id, func(s *session.Session) error {
		s.MarkRunning()
		return nil
	})
}

// UpdateProgress advances progress/stage_label. No-op (error) once terminal
// (§8.1): callers must check the returned error and stop calling after a
// terminal session, which is what this rejects.
func (m *Manager) UpdateProgress(id models.ULID, progress int, stageLabel string) error {
	_, err := m.mutate(id, func(s *session.Session) error {
		if s.IsTerminal() {
			return fmt.Errorf("session %s is terminal, no further progress accepted", id)
		}
		s.SetProgress(progress, stageLabel)
		return nil
	})
	return err
}

// Complete transitions running → completed with the final document payload.
func (m *Manager) Complete(id models.ULID, doc []byte) (*session.Session, error) {
	return m.mutate(id, func(s *session.Session) error {
		s.MarkCompleted(doc)
		return nil
	})
}

// Fail transitions running → failed with a structured error.
func (m *Manager) Fail(id models.ULID, kind, message, stage string) (*session.Session, error) {
	return m.mutate(id, func(s *session.Session) error {
		s.MarkFailed(kind, message, stage)
		return nil
	})
}

// Cancel sets the cancellation flag; the Orchestrator observes it at the
// next checkpoint and calls MarkCancelledAt itself once it stops.
func (m *Manager) Cancel(id models.ULID) error {
	_, err := m.mutate(id, func(s *session.Session) error {
		s.RequestCancel()
		return nil
	})
	return err
}

// MarkCancelledAt records the terminal cancelled transition once the
// Orchestrator has actually stopped at the named stage.
func (m *Manager) MarkCancelledAt(id models.ULID, stage string) (*session.Session, error) {
	return m.mutate(id, func(s *session.Session) error {
		s.MarkCancelled(stage)
		return nil
	})
}

// Get returns the session for id, checking the in-memory cache first and
// falling back to disk on a cache miss.
func (m *Manager) Get(id models.ULID) (*session.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id.String()]
	m.mu.RUnlock()
	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.s.Clone(), nil
	}

	s, err := m.loadFromDisk(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[id.String()] = &entry{s: s}
	m.mu.Unlock()
	return s.Clone(), nil
}

// List returns summaries of all cached sessions, optionally filtered by status.
func (m *Manager) List(status session.Status) []session.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]session.Summary, 0, len(m.entries))
	for _, e := range m.entries {
		e.mu.Lock()
		if status == "" || e.s.Status == status {
			out = append(out, e.s.ToSummary())
		}
		e.mu.Unlock()
	}
	return out
}

// GetActive returns the most recently active non-terminal session, if any.
func (m *Manager) GetActive() *session.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *session.Session
	for _, e := range m.entries {
		e.mu.Lock()
		if !e.s.IsTerminal() {
			if best == nil || e.s.LastUpdated.After(best.LastUpdated) {
				best = e.s
			}
		}
		e.mu.Unlock()
	}
	if best == nil {
		return nil
	}
	sum := best.ToSummary()
	return &sum
}

// mutate runs fn against the cached session under its own lock, persists
// the result, and returns a clone.
func (m *Manager) mutate(id models.ULID, fn func(*session.Session) error) (*session.Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id.String()]
	m.mu.RUnlock()

	if !ok {
		s, err := m.loadFromDisk(id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		e, ok = m.entries[id.String()]
		if !ok {
			e = &entry{s: s}
			m.entries[id.String()] = e
		}
		m.mu.Unlock()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fn(e.s); err != nil {
		return nil, err
	}
	if err := m.persist(e.s); err != nil {
		return nil, err
	}
	return e.s.Clone(), nil
}

func (m *Manager) persist(s *session.Session) error {
	dir, err := m.store.Root(s.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}
	if _, err := m.store.Put(dir, artifactstore.Session, data); err != nil {
		return fmt.Errorf("persisting session record: %w", err)
	}
	if m.index != nil {
		if err := m.index.Upsert(context.Background(), s); err != nil {
			m.logger.Warn("session index upsert failed", "session_id", s.ID.String(), "error", err)
		}
	}
	return nil
}

func (m *Manager) loadFromDisk(id models.ULID) (*session.Session, error) {
	dir := id.String()
	data, err := m.store.Get(dir, artifactstore.Session)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling session record: %w", err)
	}
	return &s, nil
}

// SetIndex attaches a secondary index to mirror into on every persist. Must
// be called before Create/mutate activity begins; it is not safe to swap
// concurrently with writes.
func (m *Manager) SetIndex(idx Indexer) {
	m.index = idx
}

// StartSweeper launches the periodic zombie sweep (§4.2 default 60s): any
// running session whose last_updated predates now by staleAfter is promoted
// to failed(StaleTimeout) (§8.8).
func (m *Manager) StartSweeper(ctx context.Context) {
	m.sweepOnce.Do(func() {
		go m.sweepLoop(ctx)
	})
}

// StopSweeper halts the sweep goroutine.
func (m *Manager) StopSweeper() {
	select {
	case <-m.stopSweep:
	default:
		close(m.stopSweep)
	}
}

func (m *Manager) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepOnceNow()
		}
	}
}

func (m *Manager) sweepOnceNow() {
	now := time.Now()
	m.mu.RLock()
	stale := make([]string, 0)
	for id, e := range m.entries {
		e.mu.Lock()
		if e.s.Stale(now, m.staleAfter) {
			stale = append(stale, id)
		}
		e.mu.Unlock()
	}
	m.mu.RUnlock()

	for _, id := range stale {
		parsed, err := models.ParseULID(id)
		if err != nil {
			continue
		}
		if _, err := m.mutate(parsed, func(s *session.Session) error {
			if s.Stale(now, m.staleAfter) {
				s.MarkFailed("StaleTimeout", "zombie sweep: session exceeded stale threshold", s.StageLabel)
			}
			return nil
		}); err != nil {
			m.logger.Warn("zombie sweep failed to update session", "session_id", id, "error", err)
			continue
		}
		m.logger.Warn("zombie sweep reclaimed stale session", "session_id", id)
	}
}
