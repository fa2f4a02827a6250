package artifactstore

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/andybalholm/brotli"
)

// ArchiveExt is the suffix given to a demoted session's cold-storage blob.
const ArchiveExt = ".tar.br"

// Archive compresses dir's entire contents into a single brotli-compressed
// tarball under archiveDir and removes the original directory, implementing
// the "hot" to "archived" demotion named in SPEC_FULL.md §11 for
// retention_sec_disk: terminal sessions are not deleted outright, they are
// shrunk to one cold file. Returns the archive's path relative to the store.
func (s *Store) Archive(dir, archiveDir string) (string, error) {
	srcAbs, err := s.sandbox.ResolvePath(dir)
	if err != nil {
		return "", fmt.Errorf("resolving archive source: %w", err)
	}
	if err := s.sandbox.MkdirAll(archiveDir); err != nil {
		return "", fmt.Errorf("creating archive dir: %w", err)
	}

	archiveRel := filepath.Join(archiveDir, filepath.Base(dir)+ArchiveExt)
	archiveAbs, err := s.sandbox.ResolvePath(archiveRel)
	if err != nil {
		return "", fmt.Errorf("resolving archive path: %w", err)
	}

	out, err := os.OpenFile(archiveAbs, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return "", fmt.Errorf("creating archive file: %w", err)
	}
	defer out.Close()

	bw := brotli.NewWriter(out)
	tw := tar.NewWriter(bw)

	walkErr := filepath.Walk(srcAbs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcAbs, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		return "", fmt.Errorf("archiving session directory: %w", walkErr)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("closing archive tar stream: %w", err)
	}
	if err := bw.Close(); err != nil {
		return "", fmt.Errorf("closing archive brotli stream: %w", err)
	}

	if err := s.sandbox.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("removing archived session directory: %w", err)
	}
	return archiveRel, nil
}

// ArchiveOlderThan archives (rather than deletes) every top-level session
// directory whose session.json reports a terminal status and a
// last_updated before cutoff, demoting it from hot to cold storage under
// archiveDir. The sweep stops at the first directory that fails to archive,
// leaving it in place, and returns the count archived so far with the error.
func (s *Store) ArchiveOlderThan(cutoff time.Time, archiveDir string) (archived int64, err error) {
	entries, err := s.sandbox.List(".")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("listing artifact store root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == filepath.Clean(archiveDir) {
			continue
		}
		dir := entry.Name()

		data, getErr := s.Get(dir, Session)
		if getErr != nil {
			continue
		}
		var record struct {
			Status      string    `json:"status"`
			LastUpdated time.Time `json:"last_updated"`
		}
		if jsonErr := json.Unmarshal(data, &record); jsonErr != nil {
			continue
		}
		if !terminalStatuses[record.Status] || !record.LastUpdated.Before(cutoff) {
			continue
		}
		if _, archiveErr := s.Archive(dir, archiveDir); archiveErr != nil {
			return archived, fmt.Errorf("archiving stale session %s: %w", dir, archiveErr)
		}
		archived++
	}
	return archived, nil
}
