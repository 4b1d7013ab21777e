// Package ingest implements the Ingest Pipeline (spec §4.4): capture
// detection, type classification, normalization, large-payload spooling,
// hashing, dedup probe, and persistence, run under a bounded-concurrency
// worker pool with drop-oldest back-pressure.
package ingest

import "github.com/suehn/scopy/internal/store"

// Capture is a raw clipboard event delivered by the external pasteboard
// collaborator (out of scope per spec §1; only this interface is owned
// here). The pipeline tolerates missed captures — there is no sequence
// number the pipeline depends on.
type Capture struct {
	// Bytes holds the payload for text/rtf/html/image captures. For a
	// file-reference capture, Bytes is nil and FileURLs is populated.
	Bytes []byte
	// FileURLs holds absolute paths when the pasteboard exposed a file
	// list rather than inline bytes.
	FileURLs []string
	// TypeHint is the collaborator's best guess at content type (e.g. a
	// UTI or MIME type); Detect() still verifies/refines it.
	TypeHint string
	// AppBundleID identifies the source application, optional.
	AppBundleID string
}

// Result is what Ingest returns to the Service Facade on success.
type Result struct {
	Item    store.Item
	WasNew  bool
	Skipped bool // true if the capture was dropped by back-pressure
}
