// Package blobstore implements the File Store (spec §4.3): external blob
// storage for large clipboard payloads, with atomic write + rollback and a
// safe-path reader. The atomic-write idiom (temp file, fsync, rename, clean
// up the temp file on failure) is grounded on the teacher's
// internal/cache/settings.go Settings.Save method, generalized here from a
// single JSON settings file to arbitrary-size binary blobs keyed by UUID.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/suehn/scopy/internal/logging"
)

var log = logging.WithComponent("blobstore")

// Store owns the content/ subtree of the app-data root. Thumbnails live in
// a sibling thumbnails/ directory owned by the UI collaborator and are
// never touched here.
type Store struct {
	root string // app-data root; content lives at root/content
}

// New creates a Store rooted at root, ensuring content/ exists.
func New(root string) (*Store, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create content dir: %w", err)
	}
	return &Store{root: root}, nil
}

// ContentDir returns the content/ directory path.
func (s *Store) ContentDir() string {
	return filepath.Join(s.root, "content")
}

// Write atomically persists data under a newly generated UUID with the
// given extension (may be empty) and returns the absolute path recorded as
// the item's storage_ref. Atomic write: write to <uuid>.<ext>.tmp, fsync,
// then rename to <uuid>.<ext>; the temp file is removed if the rename fails.
func (s *Store) Write(data []byte, ext string) (storageRef string, err error) {
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	finalPath := filepath.Join(s.ContentDir(), name)
	tmpPath := finalPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("blobstore: rename temp file: %w", err)
	}

	return finalPath, nil
}

// MoveFromSpool relocates a spooled ingest file into content/ under a fresh
// UUID, used when C4 decides a large payload must be externalized rather
// than re-reading and rewriting the bytes. Tries a same-filesystem rename
// first; falls back to copy+delete across filesystems.
func (s *Store) MoveFromSpool(spoolPath, ext string) (storageRef string, err error) {
	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	finalPath := filepath.Join(s.ContentDir(), name)

	if err := os.Rename(spoolPath, finalPath); err == nil {
		return finalPath, nil
	}

	if err := copyFile(spoolPath, finalPath); err != nil {
		return "", fmt.Errorf("blobstore: copy spool file: %w", err)
	}
	if err := os.Remove(spoolPath); err != nil {
		log.Warn().Err(err).Str("path", spoolPath).Msg("failed to remove spool file after copy")
	}
	return finalPath, nil
}

// Read returns the bytes at storageRef after validating it resolves inside
// content/ (spec §4.3: reject traversal, symlink escapes, paths outside the
// root).
func (s *Store) Read(storageRef string) ([]byte, error) {
	safe, err := s.safePath(storageRef)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(safe)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", storageRef, err)
	}
	return data, nil
}

// Delete best-effort removes storageRef; failures are logged, never fatal,
// matching the spec's deletion contract.
func (s *Store) Delete(storageRef string) {
	safe, err := s.safePath(storageRef)
	if err != nil {
		log.Warn().Err(err).Str("ref", storageRef).Msg("refusing to delete unsafe storage ref")
		return
	}
	if err := os.Remove(safe); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", safe).Msg("failed to delete blob")
	}
}

// safePath resolves storageRef to an absolute path and verifies it is a
// descendant of content/, rejecting traversal. Symlinks along the path are
// resolved when the target exists; a storageRef whose file is already gone
// (the common Delete-after-cleanup race) falls back to a lexical check
// against the cleaned content root.
func (s *Store) safePath(storageRef string) (string, error) {
	contentDir, err := filepath.EvalSymlinks(s.ContentDir())
	if err != nil {
		return "", fmt.Errorf("blobstore: resolve content dir: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(storageRef)
	if os.IsNotExist(err) {
		resolved = filepath.Clean(storageRef)
		contentDir = filepath.Clean(s.ContentDir())
	} else if err != nil {
		return "", fmt.Errorf("blobstore: resolve storage ref: %w", err)
	}

	rel, err := filepath.Rel(contentDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("blobstore: %s escapes content root", storageRef)
	}

	return resolved, nil
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}
