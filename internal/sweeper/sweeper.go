// Package sweeper runs the periodic disk-retention sweep (§6
// retention_sec_disk): archiving artifact directories and deleting their
// sessionstore index rows once a terminal session has aged past the
// configured retention window. It is deliberately narrow — the zombie
// sweep that reclaims stale running sessions already lives inside
// sessionmanager.Manager.StartSweeper, so this package owns only the
// disk half of retention, using the same robfig/cron engine the ancestor
// codebase uses for its own recurring maintenance jobs.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/sessionstore"
)

// DefaultSchedule runs the sweep once an hour, on the hour.
const DefaultSchedule = "0 0 * * * *"

// DefaultArchiveDir is the top-level directory stale sessions are demoted
// into as brotli-compressed tarballs rather than being deleted outright.
const DefaultArchiveDir = "_archive"

// Sweeper archives artifact directories (and deletes their index rows) for
// terminal sessions whose last_updated predates the retention window.
type Sweeper struct {
	mu sync.Mutex

	artifacts *artifactstore.Store
	index     *sessionstore.Store
	logger    *slog.Logger

	parser cron.Parser
	engine *cron.Cron
	entry  cron.EntryID

	schedule     string
	retentionSec int
	archiveDir   string
	lastSweepAt  time.Time
	lastRemoved  int64
}

// New constructs a Sweeper. retentionSec of 0 (or less) disables the
// sweep: each pass returns at once without touching the index or the
// artifact store.
func New(artifacts *artifactstore.Store, index *sessionstore.Store, logger *slog.Logger, schedule string, retentionSec int) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	engine := cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))
	return &Sweeper{
		artifacts:    artifacts,
		index:        index,
		logger:       logger.With("component", "sweeper"),
		parser:       parser,
		engine:       engine,
		schedule:     schedule,
		retentionSec: retentionSec,
		archiveDir:   DefaultArchiveDir,
	}
}

// Start validates the schedule, registers the sweep, and starts the cron
// engine. Safe to call once; a second call returns an error.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		return fmt.Errorf("sweeper already started")
	}

	if _, err := s.parser.Parse(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	entry, err := s.engine.AddFunc(s.schedule, func() { s.sweepOnceNow(ctx) })
	if err != nil {
		return fmt.Errorf("registering sweep schedule: %w", err)
	}
	s.entry = entry
	s.engine.Start()

	s.logger.Info("sweeper started", "schedule", s.schedule, "retention_sec", s.retentionSec)
	return nil
}

// Stop halts the cron engine, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	stopCtx := s.engine.Stop()
	<-stopCtx.Done()
}

// SweepNow runs one sweep pass synchronously, outside the cron schedule —
// used by callers (CLI subcommand, tests) that want an immediate pass.
func (s *Sweeper) SweepNow(ctx context.Context) (removed int64, err error) {
	return s.sweep(ctx)
}

func (s *Sweeper) sweepOnceNow(ctx context.Context) {
	removed, err := s.sweep(ctx)
	if err != nil {
		s.logger.Warn("disk retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("disk retention sweep removed stale sessions", "removed", removed)
	}
}

func (s *Sweeper) sweep(ctx context.Context) (int64, error) {
	if s.retentionSec <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-time.Duration(s.retentionSec) * time.Second)

	var removedFromIndex int64
	if s.index != nil {
		n, err := s.index.DeleteBefore(ctx, cutoff)
		if err != nil {
			return 0, fmt.Errorf("sweeping session index: %w", err)
		}
		removedFromIndex = n
	}

	removedFromDisk, err := s.artifacts.ArchiveOlderThan(cutoff, s.archiveDir)
	if err != nil {
		return removedFromIndex, fmt.Errorf("sweeping artifact store: %w", err)
	}

	s.mu.Lock()
	s.lastSweepAt = time.Now()
	s.lastRemoved = removedFromDisk
	s.mu.Unlock()

	return removedFromDisk, nil
}

// LastSweep reports when the sweep last ran and how many session
// directories it archived, for a status/health endpoint.
func (s *Sweeper) LastSweep() (at time.Time, removed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweepAt, s.lastRemoved
}
