// Package events implements the event bus (spec §4.7): a bounded,
// multi-subscriber broadcast of the changes Store.Cleanup and the rest of
// the write path append to the outbox table. Subscribers are UI
// notification streams and the search engine's incremental index updater.
//
// Grounded on the teacher's indexer daemon Server: a container/ring backed
// circular buffer plus a map of per-subscriber channels, filled by
// non-blocking sends so a slow subscriber never stalls the writer.
package events

import (
	"fmt"

	"github.com/suehn/scopy/internal/config"
)

// Kind mirrors the outbox row kinds produced by the store package, plus two
// kinds (KindSettingsChanged, KindStatsChanged) that never pass through the
// outbox table at all — settings.yml and the Prometheus-backed stats
// snapshot live outside the items database, so those two are published
// directly via Bus.Publish rather than discovered by polling outbox. The
// outbox-sourced string values must stay identical to store's unexported
// outboxKind* constants since they cross the package boundary via that
// table's TEXT column.
type Kind string

const (
	KindItemInserted        Kind = "item_inserted"
	KindItemTouched         Kind = "item_touched"
	KindItemMetadataUpdated Kind = "item_metadata_updated"
	KindItemDeleted         Kind = "item_deleted"
	KindItemsCleared        Kind = "items_cleared"
	KindSettingsChanged     Kind = "settings_changed"
	KindStatsChanged        Kind = "stats_changed"
)

// StatsSnapshot is the payload of a KindStatsChanged event: a lightweight
// copy of service.Stats. It is redeclared here rather than imported from
// the service package to avoid an import cycle (service already imports
// events to publish on the bus it owns).
type StatsSnapshot struct {
	ItemCount      int64
	InlineBytes    int64
	ExternalBytes  int64
	ThumbnailBytes int64
}

// Event is the bus's public shape. Item-mutation kinds are decoded from one
// outbox row and carry only RowID, matching the outbox table's minimal
// payload (spec §4.7's ItemInserted/ItemUpdated/ItemDeleted/ItemsCleared).
// Settings and Stats are populated only for their respective Kind.
type Event struct {
	Seq   int64
	Kind  Kind
	RowID int64

	Settings *config.Settings
	Stats    *StatsSnapshot
}

func (e Event) String() string {
	return fmt.Sprintf("event(seq=%d kind=%s row_id=%d)", e.Seq, e.Kind, e.RowID)
}
