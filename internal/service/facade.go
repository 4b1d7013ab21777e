// Package service implements the Service Facade (spec §4.8/§6.1): the one
// entry point the CLI and tests use, owning the store, blobstore, ingest
// pipeline, search engine, cleanup scheduler and event bus as a single
// lifecycle. start() acquires a plain gofrs/flock lockfile at
// <root>/scopy.lock rather than the teacher's singleton+socket pattern
// (internal/daemon), since nothing here needs a daemon-over-socket
// protocol; a partial acquisition failure during start() leaves every
// component unopened so the caller can retry cleanly.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/suehn/scopy/internal/blobstore"
	"github.com/suehn/scopy/internal/cleanup"
	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/events"
	"github.com/suehn/scopy/internal/ingest"
	"github.com/suehn/scopy/internal/logging"
	"github.com/suehn/scopy/internal/metrics"
	"github.com/suehn/scopy/internal/pasteboard"
	"github.com/suehn/scopy/internal/search"
	"github.com/suehn/scopy/internal/store"
)

var log = logging.WithComponent("service")

// Stats is the result of get_stats() (spec §6.1).
type Stats struct {
	ItemCount      int64
	InlineBytes    int64
	ExternalBytes  int64
	ThumbnailBytes int64
}

// Facade is the single entry point described by spec §6.1. One Facade owns
// exactly one app-data root; two Facades over the same root cannot both
// reach start() successfully.
type Facade struct {
	root        string
	pasteboardW pasteboard.Writer

	lock *flock.Flock

	settingsMu sync.RWMutex
	settings   *config.Settings

	st         *store.Store
	rs         *store.ReadStore
	blobs      *blobstore.Store
	spool      *blobstore.Spool
	pipeline   *ingest.Pipeline
	engine     *search.Engine
	scheduler  *cleanup.Scheduler
	bus        *events.Bus
	dispatch   *events.Dispatch
	collector  *metrics.Collector
	settingsW  *config.SettingsWatcher
	statsTick  *time.Ticker
	statsStop  chan struct{}
	statsDone  chan struct{}

	startedMu sync.Mutex
	started   bool
}

// New builds a Facade rooted at root. pasteboardW may be a real OS-level
// writer or pasteboard.NewMemoryWriter() for tests and headless use.
// Start() must be called before any other method.
func New(root string, pasteboardW pasteboard.Writer) *Facade {
	return &Facade{
		root:        root,
		pasteboardW: pasteboardW,
	}
}

func retentionPolicyFromSettings(s *config.Settings) cleanup.RetentionPolicy {
	return cleanup.RetentionPolicy{
		MaxItems:             s.MaxItems,
		MaxInlineSizeBytes:   s.MaxInlineSizeBytes,
		MaxExternalSizeBytes: s.MaxExternalSizeBytes,
	}
}

// Start implements start() (spec §6.1): acquires the data-directory lock,
// loads Settings, opens the writer and reader store connections (which
// runs migrations), and wires up the ingest pipeline, search engine,
// cleanup scheduler and event bus. Any failure past the lock acquisition
// releases everything already opened, leaving the Facade in a clean
// not-started state.
func (f *Facade) Start(ctx context.Context) (err error) {
	f.startedMu.Lock()
	defer f.startedMu.Unlock()
	if f.started {
		return ErrAlreadyStarted
	}

	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating app-data root: %v", ErrIoFailed, err)
	}

	lock := flock.New(filepath.Join(f.root, "scopy.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailed, err)
	}
	if !locked {
		return ErrLockHeld
	}
	defer func() {
		if err != nil {
			lock.Unlock()
		}
	}()

	settings, err := config.LoadSettingsFromDir(f.root)
	if err != nil {
		return fmt.Errorf("%w: loading settings: %v", ErrIoFailed, err)
	}

	dbPath := filepath.Join(f.root, "clipboard.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDbOpen, err)
	}
	defer func() {
		if err != nil {
			st.Close()
		}
	}()

	rs, err := store.OpenRead(dbPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDbOpen, err)
	}
	defer func() {
		if err != nil {
			rs.Close()
		}
	}()

	blobs, err := blobstore.New(f.root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailed, err)
	}
	spool, err := blobstore.NewSpool(filepath.Join(f.root, "ingest_spool"))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoFailed, err)
	}

	pipeline, err := ingest.New(st, blobs, spool, settings)
	if err != nil {
		return fmt.Errorf("service: building ingest pipeline: %w", err)
	}
	defer func() {
		if err != nil {
			pipeline.Close()
		}
	}()

	engine, err := search.New(rs, settings)
	if err != nil {
		return fmt.Errorf("service: building search engine: %w", err)
	}
	defer func() {
		if err != nil {
			engine.Close()
		}
	}()
	engine.LoadIndexSnapshot(ctx, f.root)

	scheduler := cleanup.New(rs, st, blobs, retentionPolicyFromSettings(settings), engine, f.root)

	bus := events.New(st)
	dispatch := events.NewDispatch(bus, rs, engine)

	collector := metrics.NewCollector(rs, engine)

	bus.Start(ctx)
	dispatch.Start(ctx)
	collector.Start()
	scheduler.StartOrphanSweep(ctx)

	f.lock = lock
	f.settings = settings
	f.st = st
	f.rs = rs
	f.blobs = blobs
	f.spool = spool
	f.pipeline = pipeline
	f.engine = engine
	f.scheduler = scheduler
	f.bus = bus
	f.dispatch = dispatch
	f.collector = collector
	f.started = true

	// Watch settings.yml for edits made outside UpdateSettings (another
	// process, or a user hand-editing the file) and republish through the
	// same settingsMu + bus.Publish path UpdateSettings uses, so both
	// sources of change converge on one SettingsChanged event (spec §4.7).
	settingsW, watchErr := config.NewSettingsWatcher(f.root, f.onExternalSettingsChange)
	if watchErr != nil {
		log.Warn().Err(watchErr).Msg("settings file watch disabled")
	}
	f.settingsW = settingsW

	f.statsTick = time.NewTicker(config.StatsChangedInterval)
	f.statsStop = make(chan struct{})
	f.statsDone = make(chan struct{})
	go f.runStatsTicker()

	log.Info().Str("root", f.root).Msg("service facade started")
	return nil
}

func (f *Facade) onExternalSettingsChange(s *config.Settings) {
	f.settingsMu.Lock()
	*f.settings = *s
	f.settingsMu.Unlock()
	f.scheduler.UpdatePolicy(retentionPolicyFromSettings(s))
	f.bus.Publish(events.Event{Kind: events.KindSettingsChanged, Settings: s})
	log.Info().Msg("settings reloaded from disk")
}

// runStatsTicker publishes StatsChanged on a fixed interval so subscribers
// see retention and ingest progress without polling GetStats themselves
// (spec §4.7's StatsChanged, otherwise never emitted since stats have no
// owning transaction to hang a post-commit publish off of).
func (f *Facade) runStatsTicker() {
	defer close(f.statsDone)
	for {
		select {
		case <-f.statsTick.C:
			stats, err := f.GetStats(context.Background())
			if err != nil {
				continue
			}
			f.bus.Publish(events.Event{
				Kind: events.KindStatsChanged,
				Stats: &events.StatsSnapshot{
					ItemCount:      stats.ItemCount,
					InlineBytes:    stats.InlineBytes,
					ExternalBytes:  stats.ExternalBytes,
					ThumbnailBytes: stats.ThumbnailBytes,
				},
			})
		case <-f.statsStop:
			return
		}
	}
}

// Stop implements stop() (spec §6.1): shuts down every background
// goroutine and releases the data-directory lock. Safe to call on an
// already-stopped Facade.
func (f *Facade) Stop() {
	f.startedMu.Lock()
	defer f.startedMu.Unlock()
	if !f.started {
		return
	}

	f.statsTick.Stop()
	close(f.statsStop)
	<-f.statsDone
	if f.settingsW != nil {
		f.settingsW.Stop()
	}

	f.scheduler.Stop()
	f.dispatch.Stop()
	f.bus.Stop()
	f.collector.Stop()
	f.pipeline.Close()
	if err := f.engine.SaveIndexSnapshot(f.root); err != nil {
		log.Warn().Err(err).Msg("failed to persist fuzzy index snapshot")
	}
	f.engine.Close()
	f.rs.Close()
	f.st.Close()
	f.lock.Unlock()

	f.started = false
	log.Info().Msg("service facade stopped")
}

func (f *Facade) requireStarted() error {
	if !f.started {
		return ErrNotStarted
	}
	return nil
}

// FetchRecent implements fetch_recent(limit, offset, filters).
func (f *Facade) FetchRecent(ctx context.Context, limit, offset int, filters store.Filters) (store.Page, error) {
	if err := f.requireStarted(); err != nil {
		return store.Page{}, err
	}
	return f.rs.FetchRecent(ctx, limit, offset, filters)
}

// Search implements search(req).
func (f *Facade) Search(ctx context.Context, req search.Request) (search.ResultPage, error) {
	if err := f.requireStarted(); err != nil {
		return search.ResultPage{}, err
	}
	return f.engine.Search(ctx, req)
}

// Explain reports which code path req would take without running it.
func (f *Facade) Explain(req search.Request) (search.Explanation, error) {
	if err := f.requireStarted(); err != nil {
		return search.Explanation{}, err
	}
	return f.engine.Explain(req), nil
}

// Pin implements pin(id). Pinning an already-pinned item succeeds
// (spec §7: idempotent operations succeed on already-absent/already-applied
// state).
func (f *Facade) Pin(ctx context.Context, id string) error {
	return f.setPinned(ctx, id, true)
}

// Unpin implements unpin(id).
func (f *Facade) Unpin(ctx context.Context, id string) error {
	return f.setPinned(ctx, id, false)
}

func (f *Facade) setPinned(ctx context.Context, id string, pinned bool) error {
	if err := f.requireStarted(); err != nil {
		return err
	}
	return f.st.UpdateMetadata(ctx, id, store.MetadataDelta{IsPinned: &pinned})
}

// Delete implements delete(id). The external blob, if any, is reclaimed
// best-effort after the row is committed; a failure to reclaim it is
// logged, not surfaced, since the orphan sweep will pick it up later
// (spec §7).
func (f *Facade) Delete(ctx context.Context, id string) error {
	if err := f.requireStarted(); err != nil {
		return err
	}
	ref, err := f.st.Delete(ctx, id)
	if err != nil {
		return err
	}
	if ref != "" {
		f.blobs.Delete(ref)
	}
	return nil
}

// ClearAll implements clear_all(keep_pinned).
func (f *Facade) ClearAll(ctx context.Context, keepPinned bool) error {
	if err := f.requireStarted(); err != nil {
		return err
	}
	refs, err := f.st.DeleteAll(ctx, keepPinned)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		f.blobs.Delete(ref)
	}
	return nil
}

// CopyToPasteboard implements copy_to_pasteboard(id): hydrates the item's
// payload (external blob or inline raw_data) and hands it to the
// pasteboard writer.
func (f *Facade) CopyToPasteboard(ctx context.Context, id string) error {
	if err := f.requireStarted(); err != nil {
		return err
	}
	item, err := f.rs.FetchByID(ctx, id)
	if err != nil {
		return err
	}
	payload, err := f.hydrate(item)
	if err != nil {
		return err
	}
	return f.pasteboardW.Write(ctx, item, payload)
}

// LoadPreviewData implements load_preview_data(id): returns the item's full
// payload, or (nil, nil) if the item has no bytes to preview.
func (f *Facade) LoadPreviewData(ctx context.Context, id string) ([]byte, error) {
	if err := f.requireStarted(); err != nil {
		return nil, err
	}
	item, err := f.rs.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.hydrate(item)
}

func (f *Facade) hydrate(item store.Item) ([]byte, error) {
	if item.StorageRef != "" {
		data, err := f.blobs.Read(item.StorageRef)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIoFailed, err)
		}
		return data, nil
	}
	return item.RawData, nil
}

// GetSettings implements get_settings().
func (f *Facade) GetSettings() config.Settings {
	f.settingsMu.RLock()
	defer f.settingsMu.RUnlock()
	return *f.settings
}

// UpdateSettings implements update_settings(Settings): validates, writes
// through to settings.yml, and updates the shared Settings value every
// running component already holds a pointer to, so the new retention caps
// and search defaults take effect on the next call without restarting the
// Facade.
func (f *Facade) UpdateSettings(s config.Settings) error {
	if err := f.requireStarted(); err != nil {
		return err
	}
	if err := config.Validate(&s); err != nil {
		return err
	}

	f.settingsMu.Lock()
	defer f.settingsMu.Unlock()

	if err := config.Save(f.root, &s); err != nil {
		return err
	}
	*f.settings = s
	f.scheduler.UpdatePolicy(retentionPolicyFromSettings(f.settings))
	f.bus.Publish(events.Event{Kind: events.KindSettingsChanged, Settings: f.settings})
	return nil
}

// GetStats implements get_stats().
func (f *Facade) GetStats(ctx context.Context) (Stats, error) {
	if err := f.requireStarted(); err != nil {
		return Stats{}, err
	}

	statistics, err := f.rs.Statistics(ctx)
	if err != nil {
		return Stats{}, err
	}
	inlineBytes, externalBytes, err := f.rs.InlineExternalBytes(ctx)
	if err != nil {
		return Stats{}, err
	}
	thumbBytes, err := dirSize(filepath.Join(f.root, "thumbnails"))
	if err != nil {
		thumbBytes = 0
	}

	return Stats{
		ItemCount:      statistics.ItemCount,
		InlineBytes:    inlineBytes,
		ExternalBytes:  externalBytes,
		ThumbnailBytes: thumbBytes,
	}, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// Submit hands a raw capture to the ingest pipeline, returning a channel
// delivering its eventual Result. This is the entry point the external
// pasteboard collaborator's polling driver calls (spec §1); it is not part
// of spec §6.1's API but is the Facade's other inbound edge.
func (f *Facade) Submit(c ingest.Capture) (<-chan ingest.Result, error) {
	if err := f.requireStarted(); err != nil {
		return nil, err
	}
	return f.pipeline.Submit(c), nil
}

// Events implements events(): subscribes to the bus and returns a channel
// of Event plus whatever recent history is still in the replay buffer, so
// a caller that starts late does not miss events published just before it
// subscribed.
func (f *Facade) Events() (id string, ch <-chan events.Event, backlog []events.Event, err error) {
	if err := f.requireStarted(); err != nil {
		return "", nil, nil, err
	}
	id, ch, backlog = f.bus.Subscribe()
	return id, ch, backlog, nil
}

// Unsubscribe releases a subscription previously returned by Events.
func (f *Facade) Unsubscribe(id string) {
	if f.bus != nil {
		f.bus.Unsubscribe(id)
	}
}

// RunCleanup runs one cleanup pass synchronously, exposed for the `cleanup`
// CLI command (spec §6.5) which runs the scheduler on demand rather than
// waiting for its internal schedule.
func (f *Facade) RunCleanup(ctx context.Context) (cleanup.Result, error) {
	if err := f.requireStarted(); err != nil {
		return cleanup.Result{}, err
	}
	return f.scheduler.Run(ctx)
}
