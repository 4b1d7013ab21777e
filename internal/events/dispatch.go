package events

import (
	"context"

	"github.com/suehn/scopy/internal/store"
)

// IndexUpdater is implemented by search.Engine. Dispatch hydrates the full
// Item for insert/touch/metadata events (the outbox only carries a row_id)
// before handing it to OnInsert, since the fuzzy index needs the text and
// sort fields, not just the id.
type IndexUpdater interface {
	OnInsert(item store.Item)
	OnDelete(rowID int64)
	OnPin(rowID int64, isPinned bool)
	OnClearAll()
}

// Dispatch subscribes to a Bus and keeps an IndexUpdater (the search
// Engine) consistent with every committed write, replacing the
// test-only manual OnInsert/OnDelete/OnPin/OnClearAll calls with the
// live wiring the Service Facade runs in production (spec §4.7/§4.5).
type Dispatch struct {
	bus     *Bus
	rs      *store.ReadStore
	updater IndexUpdater

	subID  string
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatch builds a Dispatch. Call Start to begin consuming.
func NewDispatch(bus *Bus, rs *store.ReadStore, updater IndexUpdater) *Dispatch {
	return &Dispatch{bus: bus, rs: rs, updater: updater, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Start subscribes to the bus and processes its backlog plus live events
// until Stop is called.
func (d *Dispatch) Start(ctx context.Context) {
	subID, ch, backlog := d.bus.Subscribe()
	d.subID = subID

	go func() {
		defer close(d.doneCh)
		for _, ev := range backlog {
			d.handle(ctx, ev)
		}
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				d.handle(ctx, ev)
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Dispatch) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case KindItemInserted, KindItemTouched:
		items, err := d.rs.FetchByRowIDs(ctx, []int64{ev.RowID})
		if err != nil || len(items) == 0 {
			log.Error().Err(err).Int64("row_id", ev.RowID).Msg("dispatch: fetching item for index update")
			return
		}
		d.updater.OnInsert(items[0])
	case KindItemMetadataUpdated:
		items, err := d.rs.FetchByRowIDs(ctx, []int64{ev.RowID})
		if err != nil || len(items) == 0 {
			log.Error().Err(err).Int64("row_id", ev.RowID).Msg("dispatch: fetching item for pin update")
			return
		}
		d.updater.OnPin(ev.RowID, items[0].IsPinned)
	case KindItemDeleted:
		d.updater.OnDelete(ev.RowID)
	case KindItemsCleared:
		d.updater.OnClearAll()
	}
}

// Stop unsubscribes from the bus and blocks until the consume goroutine
// has exited.
func (d *Dispatch) Stop() {
	close(d.stopCh)
	<-d.doneCh
	d.bus.Unsubscribe(d.subID)
}
