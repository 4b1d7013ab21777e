package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher watches settings.yml for on-disk edits made outside of
// UpdateSettings (e.g. a user hand-editing the file, or a second process
// writing through to the same app-data root) and reloads Settings when it
// changes, debounced the way the teacher's BranchWatcher debounces
// .git/HEAD writes: a burst of writes from an editor's save-then-rename
// collapses into one reload instead of one per fsnotify event.
type SettingsWatcher struct {
	appDataRoot string
	watcher     *fsnotify.Watcher
	onChange    func(*Settings)

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSettingsWatcher starts watching <appDataRoot>/settings.yml. onChange is
// invoked (from the watcher's own goroutine) with the freshly reloaded
// Settings every time the file changes and reload succeeds; a reload that
// fails (malformed YAML mid-write, a validation failure) is skipped silently
// and is not reported, since the file write may still be in progress; the
// next write event on the file triggers another reload attempt.
func NewSettingsWatcher(appDataRoot string, onChange func(*Settings)) (*SettingsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating settings watcher: %w", err)
	}

	// Watch the directory, not the file: editors commonly replace the file
	// via write-temp-then-rename, which fsnotify only observes as an event
	// on the containing directory's watch, not the original file's.
	if err := w.Add(appDataRoot); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watching %s: %w", appDataRoot, err)
	}

	sw := &SettingsWatcher{
		appDataRoot: appDataRoot,
		watcher:     w,
		onChange:    onChange,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	go sw.run()
	return sw, nil
}

func (sw *SettingsWatcher) run() {
	defer close(sw.doneCh)

	settingsPath := filepath.Join(sw.appDataRoot, "settings.yml")
	var debounce *time.Timer
	reload := func() {
		s, err := LoadSettingsFromDir(sw.appDataRoot)
		if err != nil {
			return
		}
		sw.onChange(s)
	}

	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != settingsPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, reload)

		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}

		case <-sw.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

// Stop halts the watcher and blocks until its goroutine has exited. Safe to
// call more than once.
func (sw *SettingsWatcher) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.stopped = true
	close(sw.stopCh)
	<-sw.doneCh
	sw.watcher.Close()
}
