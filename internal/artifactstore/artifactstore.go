// Package artifactstore persists the per-session artifact set (§4.7) on top
// of a sandboxed filesystem. It owns the on-disk layout; it never
// interprets the artifacts' contents. All writes go through the sandbox's
// atomic write path so a crash mid-write never corrupts a previously-good
// artifact, the same discipline the ancestor codebase uses for its own
// sandboxed file operations.
package artifactstore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmylchreest/docweave/internal/models"
	"github.com/jmylchreest/docweave/internal/storage"
)

// Logical artifact names, fixed by §4.7's layout.
const (
	Source     = "source"
	Proxy      = "proxy.mp4"
	Audio      = "audio.wav"
	Transcript = "transcript.json"
	Moments    = "moments.json"
	Session    = "session.json"
	Trace      = "trace.jsonl"
	FramesDir  = "frames"
)

// DocName returns the final document's artifact name for the given format extension ("md" or "json").
func DocName(ext string) string {
	return "doc." + ext
}

// Store persists artifacts under one directory per session.
type Store struct {
	sandbox *storage.Sandbox
}

// New wraps a sandbox rooted at the configured storage data directory.
func New(sandbox *storage.Sandbox) *Store {
	return &Store{sandbox: sandbox}
}

// Root returns the session-relative root directory, creating it if absent.
func (s *Store) Root(sessionID models.ULID) (string, error) {
	rel := sessionID.String()
	if err := s.sandbox.MkdirAll(rel); err != nil {
		return "", fmt.Errorf("creating session root: %w", err)
	}
	return rel, nil
}

// Put atomically writes bytes under dir/name.
func (s *Store) Put(dir, name string, data []byte) (string, error) {
	rel := filepath.Join(dir, name)
	if err := s.sandbox.AtomicWrite(rel, data); err != nil {
		return "", fmt.Errorf("putting artifact %s: %w", name, err)
	}
	return rel, nil
}

// PutReader atomically streams r into dir/name, for large artifacts such as
// the proxy video or extracted audio.
func (s *Store) PutReader(dir, name string, r io.Reader) (string, error) {
	rel := filepath.Join(dir, name)
	if err := s.sandbox.AtomicWriteReader(rel, r); err != nil {
		return "", fmt.Errorf("putting artifact %s: %w", name, err)
	}
	return rel, nil
}

// Get reads the bytes of dir/name.
func (s *Store) Get(dir, name string) ([]byte, error) {
	data, err := s.sandbox.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("getting artifact %s: %w", name, err)
	}
	return data, nil
}

// Path resolves the absolute filesystem path for dir/name, for adapters
// that need a real path (ffmpeg, external STT binaries) rather than bytes.
func (s *Store) Path(dir, name string) (string, error) {
	return s.sandbox.ResolvePath(filepath.Join(dir, name))
}

// Manifest enumerates every artifact present under dir, logical name to
// relative path, as required by §6's artifact manifest response.
func (s *Store) Manifest(dir string) (map[string]string, error) {
	absRoot, err := s.sandbox.ResolvePath(dir)
	if err != nil {
		return nil, err
	}
	manifest := make(map[string]string)
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		relToRoot, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		manifest[filepath.ToSlash(relToRoot)] = filepath.Join(dir, relToRoot)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return manifest, nil
		}
		return nil, fmt.Errorf("walking artifact manifest: %w", err)
	}
	return manifest, nil
}

// KeyframeManifestEntry is one entry of the keyframes sub-manifest,
// {index, timestamp_sec, path} (§6).
type KeyframeManifestEntry struct {
	Index        int     `json:"index"`
	TimestampSec float64 `json:"timestamp_sec"`
	Path         string  `json:"path"`
}

// BuildKeyframeManifest orders keyframe paths by timestamp and assigns indices.
func BuildKeyframeManifest(dir string, frames []KeyframeInput) []KeyframeManifestEntry {
	sorted := make([]KeyframeInput, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampSec < sorted[j].TimestampSec })

	entries := make([]KeyframeManifestEntry, 0, len(sorted))
	for i, f := range sorted {
		entries = append(entries, KeyframeManifestEntry{
			Index:        i,
			TimestampSec: f.TimestampSec,
			Path:         filepath.Join(dir, FramesDir, f.FileName),
		})
	}
	return entries
}

// KeyframeInput is the minimal shape BuildKeyframeManifest needs from a
// capability.Keyframe without importing the capability package here.
type KeyframeInput struct {
	TimestampSec float64
	FileName     string
}

// Delete removes the entire session directory and everything under it.
func (s *Store) Delete(dir string) error {
	if err := s.sandbox.RemoveAll(dir); err != nil {
		return fmt.Errorf("deleting session artifacts: %w", err)
	}
	return nil
}

// Exists reports whether dir/name is present.
func (s *Store) Exists(dir, name string) (bool, error) {
	return s.sandbox.Exists(filepath.Join(dir, name))
}

// terminalStatuses mirrors session.Status's terminal set without importing
// the session package, which would create an import cycle (session's own
// persistence round-trips through this store's Get/Put).
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
	"cancelled": true,
}

// RemoveOlderThan deletes every top-level session directory whose
// session.json reports a terminal status and a last_updated before cutoff
// (§6 retention_sec_disk). Directories with no readable session.json, or
// still non-terminal, are left alone.
func (s *Store) RemoveOlderThan(cutoff time.Time) (int64, error) {
	entries, err := s.sandbox.List(".")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing artifact store root: %w", err)
	}

	var removed int64
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := entry.Name()

		data, err := s.Get(dir, Session)
		if err != nil {
			continue
		}
		var record struct {
			Status      string    `json:"status"`
			LastUpdated time.Time `json:"last_updated"`
		}
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if !terminalStatuses[record.Status] || !record.LastUpdated.Before(cutoff) {
			continue
		}
		if err := s.Delete(dir); err != nil {
			return removed, fmt.Errorf("removing stale session %s: %w", dir, err)
		}
		removed++
	}
	return removed, nil
}
