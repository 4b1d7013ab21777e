// Package pasteboard defines the boundary to the system clipboard (spec
// §1): the polling driver that delivers captures into internal/ingest and
// the writer that copy_to_pasteboard hands a restored item to are both
// external collaborators. Only the interface lives here; a real OS-level
// implementation (NSPasteboard, win32 clipboard, X11 selections) is out of
// scope, mirroring the teacher's treatment of embedding providers as a
// pluggable interface behind a small package.
package pasteboard

import (
	"context"
	"fmt"

	"github.com/suehn/scopy/internal/store"
)

// Writer restores a persisted item onto the live system clipboard.
// copy_to_pasteboard (spec §6.1) delegates to this interface; the Service
// Facade owns hydrating external blobs before calling Write.
type Writer interface {
	Write(ctx context.Context, item store.Item, payload []byte) error
}

// MemoryWriter is an in-process Writer for tests and for environments with
// no real pasteboard (headless CI, non-interactive daemon). It simply
// remembers the last write.
type MemoryWriter struct {
	LastItem    store.Item
	LastPayload []byte
	writes      int
}

// NewMemoryWriter builds a MemoryWriter.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (w *MemoryWriter) Write(_ context.Context, item store.Item, payload []byte) error {
	w.LastItem = item
	w.LastPayload = payload
	w.writes++
	return nil
}

// Writes reports how many times Write has been called, for assertions.
func (w *MemoryWriter) Writes() int { return w.writes }

// ErrUnsupportedType is returned by a Writer when asked to restore an item
// type it has no pasteboard representation for.
var ErrUnsupportedType = fmt.Errorf("pasteboard: unsupported item type")
