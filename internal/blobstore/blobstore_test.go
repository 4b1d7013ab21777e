package blobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_PersistsAndReturnsRefUnderContentDir(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	ref, err := s.Write([]byte("hello blob"), "bin")
	require.NoError(t, err)
	assert.True(t, filepath.Dir(ref) == s.ContentDir())

	got, err := s.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, "hello blob", string(got))
}

func TestWrite_LeavesNoTempFileBehind(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Write([]byte("data"), "bin")
	require.NoError(t, err)

	entries, err := os.ReadDir(s.ContentDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestRead_RejectsPathOutsideContentRoot(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("leak"), 0o644))

	_, err = s.Read(outside)
	assert.Error(t, err)
}

func TestRead_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("leak"), 0o644))

	link := filepath.Join(s.ContentDir(), "escape.bin")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	_, err = s.Read(link)
	assert.Error(t, err)
}

func TestDelete_MissingFileIsNotFatal(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	s.Delete(filepath.Join(s.ContentDir(), "does-not-exist.bin"))
}

func TestMoveFromSpool_RelocatesFile(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	sp, err := NewSpool(filepath.Join(root, "ingest_spool"))
	require.NoError(t, err)

	spoolPath, err := sp.Write([]byte("spooled payload"))
	require.NoError(t, err)

	ref, err := s.MoveFromSpool(spoolPath, "bin")
	require.NoError(t, err)

	_, statErr := os.Stat(spoolPath)
	assert.True(t, os.IsNotExist(statErr), "spool file should be gone after move")

	got, err := s.Read(ref)
	require.NoError(t, err)
	assert.Equal(t, "spooled payload", string(got))
}

func TestSpool_DiscardRemovesFile(t *testing.T) {
	sp, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	path, err := sp.Write([]byte("temp"))
	require.NoError(t, err)

	require.NoError(t, sp.Discard(path))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSpool_DiscardMissingFileIsNotAnError(t *testing.T) {
	sp, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, sp.Discard(filepath.Join(sp.Dir(), "never-existed.spool")))
}
