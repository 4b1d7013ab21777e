package cleanup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SweepOrphans removes content/ directory entries that no live item's
// storage_ref points at (spec §4.6). It refuses to run if the directory it
// would scan doesn't match the facade's configured root — a safety check
// against catastrophic deletes during testing or misconfiguration.
func (s *Scheduler) SweepOrphans(ctx context.Context) (int, error) {
	if s.contentRoot != s.configuredRoot {
		return 0, fmt.Errorf("cleanup: refusing orphan sweep: content root %q does not match configured root %q", s.contentRoot, s.configuredRoot)
	}

	s.sweepMu.Lock()
	s.lastSweep = time.Now()
	s.sweepMu.Unlock()

	knownRefs, err := s.st.KnownStorageRefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup: listing known storage refs: %w", err)
	}

	entries, err := os.ReadDir(s.contentRoot)
	if err != nil {
		return 0, fmt.Errorf("cleanup: reading content dir: %w", err)
	}

	var orphans []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(s.contentRoot, e.Name())
		if !knownRefs[full] {
			orphans = append(orphans, full)
		}
	}

	removed, _ := s.reclaimBlobs(ctx, orphans)
	return removed, nil
}

// LastSweepTime reports when SweepOrphans last ran, for the facade's
// Stats() output. Zero value means it has never run.
func (s *Scheduler) LastSweepTime() time.Time {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	return s.lastSweep
}
