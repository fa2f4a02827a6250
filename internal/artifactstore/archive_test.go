package artifactstore

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/jmylchreest/docweave/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Archive_CompressesAndRemovesSource(t *testing.T) {
	s := setupStore(t)
	sessionID := models.NewULID()
	dir, err := s.Root(sessionID)
	require.NoError(t, err)

	_, err = s.Put(dir, Session, []byte(`{"status":"completed"}`))
	require.NoError(t, err)
	_, err = s.Put(dir, Transcript, []byte(`[{"text":"hello"}]`))
	require.NoError(t, err)

	archiveRel, err := s.Archive(dir, "archive")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(archiveRel, ArchiveExt))

	exists, err := s.sandbox.Exists(dir)
	require.NoError(t, err)
	assert.False(t, exists, "the original session directory is removed once archived")

	archiveAbs, err := s.sandbox.ResolvePath(archiveRel)
	require.NoError(t, err)
	names := readTarBrMembers(t, archiveAbs)
	assert.Contains(t, names, Session)
	assert.Contains(t, names, Transcript)
}

func TestStore_ArchiveOlderThan_SkipsRunningAndRecentSessions(t *testing.T) {
	s := setupStore(t)

	old := models.NewULID()
	oldDir, err := s.Root(old)
	require.NoError(t, err)
	_, err = s.Put(oldDir, Session, mustSessionJSON(t, "completed", time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)

	running := models.NewULID()
	runningDir, err := s.Root(running)
	require.NoError(t, err)
	_, err = s.Put(runningDir, Session, mustSessionJSON(t, "running", time.Now().Add(-48*time.Hour)))
	require.NoError(t, err)

	recent := models.NewULID()
	recentDir, err := s.Root(recent)
	require.NoError(t, err)
	_, err = s.Put(recentDir, Session, mustSessionJSON(t, "completed", time.Now()))
	require.NoError(t, err)

	archived, err := s.ArchiveOlderThan(time.Now().Add(-24*time.Hour), "archive")
	require.NoError(t, err)
	assert.EqualValues(t, 1, archived)

	oldExists, err := s.sandbox.Exists(oldDir)
	require.NoError(t, err)
	assert.False(t, oldExists, "the old completed session was archived away")

	runningExists, err := s.sandbox.Exists(runningDir)
	require.NoError(t, err)
	assert.True(t, runningExists, "a running session is never archived regardless of age")

	recentExists, err := s.sandbox.Exists(recentDir)
	require.NoError(t, err)
	assert.True(t, recentExists, "a completed session newer than cutoff is left alone")
}

func mustSessionJSON(t *testing.T, status string, lastUpdated time.Time) []byte {
	t.Helper()
	return []byte(`{"status":"` + status + `","last_updated":"` + lastUpdated.Format(time.RFC3339) + `"}`)
}

// readTarBrMembers decompresses a brotli-compressed tarball and returns its
// member names, used only to assert Archive actually wrote a valid archive.
func readTarBrMembers(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	tr := tar.NewReader(brotli.NewReader(f))
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, filepath.Base(hdr.Name))
		}
	}
	return names
}
