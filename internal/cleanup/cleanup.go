// Package cleanup implements the Cleanup Scheduler (spec §4.6): retention
// enforcement across three independent caps, plus an orphan sweep of
// content/ entries no item references any longer. Directly grounded on the
// teacher's internal/cache/eviction.go EvictionPolicy/EvictStaleBranches
// shape, retargeted from git-branch eviction to item retention: pinned
// items replace protected branches, RetentionPolicy replaces
// EvictionPolicy.
package cleanup

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/suehn/scopy/internal/blobstore"
	"github.com/suehn/scopy/internal/logging"
	"github.com/suehn/scopy/internal/metrics"
	"github.com/suehn/scopy/internal/store"
)

var log = logging.WithComponent("cleanup")

// reclaimConcurrency bounds external blob deletion (spec §4.6: "≤ 8
// concurrent deletions regardless of list size").
const reclaimConcurrency = 8

// orphanSweepInterval is the minimum spacing between orphan sweeps (spec:
// "at most once per hour").
const orphanSweepInterval = time.Hour

// RetentionPolicy mirrors the teacher's EvictionPolicy shape with the
// spec's three caps in place of age/size-in-MB/protected-branches.
type RetentionPolicy struct {
	MaxItems              int
	MaxInlineSizeBytes    int64
	MaxExternalSizeBytes  int64
}

// Notifier is implemented by the search Engine: after a successful
// cleanup, the engine must invalidate its caches and mark the fuzzy index
// stale (spec §4.6).
type Notifier interface {
	InvalidateCaches()
}

// Result reports what one Run did.
type Result struct {
	DeletedCount   int
	ReclaimedFiles int
	ReclaimErrors  int
	Duration       time.Duration
}

// Scheduler owns retention enforcement and the orphan sweep. It holds no
// lock of its own beyond what Store/ReadStore already serialize; Run and
// SweepOrphans are safe to call concurrently with search but not with each
// other (the caller — the Service Facade — serializes scheduled runs).
type Scheduler struct {
	rs       *store.ReadStore
	st       *store.Store
	blobs    *blobstore.Store
	notifier Notifier

	policyMu sync.RWMutex
	policy   RetentionPolicy

	contentRoot    string // directory Sweep actually scans
	configuredRoot string // directory the facade was configured with

	sem *semaphore.Weighted

	sweepMu   sync.Mutex
	lastSweep time.Time
	stopCh    chan struct{}
}

// New builds a Scheduler. configuredRoot and blobs.ContentDir() are
// compared before every orphan sweep as the safety check of spec §4.6
// ("refuses to run if the root directory disagrees with configuration").
func New(rs *store.ReadStore, st *store.Store, blobs *blobstore.Store, policy RetentionPolicy, notifier Notifier, configuredRoot string) *Scheduler {
	return &Scheduler{
		rs:             rs,
		st:             st,
		blobs:          blobs,
		policy:         policy,
		notifier:       notifier,
		contentRoot:    blobs.ContentDir(),
		configuredRoot: filepath.Join(configuredRoot, "content"),
		sem:            semaphore.NewWeighted(reclaimConcurrency),
		stopCh:         make(chan struct{}),
	}
}

// Run executes one cleanup pass (spec §4.6): plan on the read connection,
// delete in one writer transaction, reclaim external blobs on a bounded
// pool, then notify the search engine.
func (s *Scheduler) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.CleanupDuration) }()
	metrics.CleanupRunsTotal.Inc()

	policy := s.currentPolicy()
	plan, err := s.rs.PlanCleanup(ctx, policy.MaxItems, policy.MaxInlineSizeBytes, policy.MaxExternalSizeBytes)
	if err != nil {
		return Result{}, fmt.Errorf("cleanup: planning: %w", err)
	}
	if len(plan.RowIDs) == 0 {
		return Result{Duration: time.Since(start)}, nil
	}

	cleanupResult, err := s.st.Cleanup(ctx, store.CleanupPlan{RowIDs: plan.RowIDs})
	if err != nil {
		return Result{}, fmt.Errorf("cleanup: deleting planned rows: %w", err)
	}
	metrics.ItemsEvictedTotal.WithLabelValues("retention_cap").Add(float64(len(cleanupResult.DeletedRowIDs)))

	reclaimed, reclaimErrors := s.reclaimBlobs(ctx, cleanupResult.StorageRefs)

	s.notifier.InvalidateCaches()

	return Result{
		DeletedCount:   len(cleanupResult.DeletedRowIDs),
		ReclaimedFiles: reclaimed,
		ReclaimErrors:  reclaimErrors,
		Duration:       time.Since(start),
	}, nil
}

// reclaimBlobs deletes each non-empty storage ref on a bounded-concurrency
// pool, so reclaiming thousands of files never bursts the filesystem.
func (s *Scheduler) reclaimBlobs(ctx context.Context, refs []string) (reclaimed, errs int) {
	type outcome struct{ ok bool }
	results := make(chan outcome, len(refs))

	count := 0
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		count++
		if err := s.sem.Acquire(ctx, 1); err != nil {
			results <- outcome{ok: false}
			continue
		}
		go func(ref string) {
			defer s.sem.Release(1)
			s.blobs.Delete(ref)
			results <- outcome{ok: true}
		}(ref)
	}

	for i := 0; i < count; i++ {
		o := <-results
		if o.ok {
			reclaimed++
		} else {
			errs++
		}
	}
	return reclaimed, errs
}

// StartOrphanSweep runs the first sweep deferred on a short delay, then
// hourly thereafter, until Stop is called (spec §4.6: "runs on app start,
// deferred, and at most once per hour thereafter").
func (s *Scheduler) StartOrphanSweep(ctx context.Context) {
	go func() {
		select {
		case <-time.After(10 * time.Second):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
		s.runSweepSafely(ctx)

		ticker := time.NewTicker(orphanSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runSweepSafely(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) runSweepSafely(ctx context.Context) {
	removed, err := s.SweepOrphans(ctx)
	if err != nil {
		log.Error().Err(err).Msg("orphan sweep failed")
		return
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("orphan sweep reclaimed files")
	}
	metrics.OrphansReclaimedTotal.Add(float64(removed))
}

// Stop halts the orphan sweep goroutine.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// UpdatePolicy swaps the retention policy Run enforces, used when
// update_settings changes the retention caps without requiring the
// Scheduler to be rebuilt.
func (s *Scheduler) UpdatePolicy(policy RetentionPolicy) {
	s.policyMu.Lock()
	defer s.policyMu.Unlock()
	s.policy = policy
}

func (s *Scheduler) currentPolicy() RetentionPolicy {
	s.policyMu.RLock()
	defer s.policyMu.RUnlock()
	return s.policy
}
