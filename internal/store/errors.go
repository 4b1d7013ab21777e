package store

import "errors"

// Sentinel errors returned by Store/ReadStore operations, matching the
// error taxonomy spec §4.2 assigns to each operation.
var (
	// ErrNotFound is returned by update_metadata/delete when id does not
	// name a live item.
	ErrNotFound = errors.New("store: item not found")

	// ErrDbBusy is returned when the writer could not acquire the database
	// within its retry budget (see cenkalti/backoff-driven retry in
	// store.go's withRetry).
	ErrDbBusy = errors.New("store: database busy")

	// ErrDiskFull surfaces SQLITE_FULL to the caller distinctly from a
	// generic write failure.
	ErrDiskFull = errors.New("store: disk full")

	// ErrCorrupt surfaces SQLITE_CORRUPT; the Service Facade treats this as
	// fatal and refuses to start() against the affected database file.
	ErrCorrupt = errors.New("store: database corrupt")
)
