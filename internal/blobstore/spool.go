package blobstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Spool is the ingest-time staging directory (spec §4.3, §4.4.4): a
// cache-tier directory holding large payloads in flight, separate from the
// durable content/ tree, so a capture that never reaches dedup/persistence
// doesn't leave bytes behind in the item store.
type Spool struct {
	dir string
}

// NewSpool creates a Spool rooted at dir (typically <app-data-root>/ingest_spool).
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool directory path.
func (sp *Spool) Dir() string { return sp.dir }

// Write spools data to a fresh UUID-named file and returns its path. Spool
// writes skip the fsync+rename dance content/ uses — a spooled file that
// disappears on crash just means the in-flight capture is lost, which the
// ingest pipeline already tolerates (spec §9: missed captures).
func (sp *Spool) Write(data []byte) (path string, err error) {
	path = filepath.Join(sp.dir, uuid.NewString()+".spool")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("blobstore: write spool file: %w", err)
	}
	return path, nil
}

// Discard removes a spooled file, used on dedup hit or ingest failure.
// Best-effort: a missing file is not an error.
func (sp *Spool) Discard(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: discard spool file: %w", err)
	}
	return nil
}

// Sweep removes any spool files older than the given mtime cutoff,
// recovering space from captures that crashed before dedup/persistence
// ever ran Discard.
func (sp *Spool) Sweep(olderThanUnixSeconds int64) (removed int, err error) {
	entries, err := os.ReadDir(sp.dir)
	if err != nil {
		return 0, fmt.Errorf("blobstore: read spool dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Unix() < olderThanUnixSeconds {
			if err := os.Remove(filepath.Join(sp.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
