package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/store"
)

func insertItem(t *testing.T, st *store.Store) store.Item {
	t.Helper()
	live, _, err := st.InsertOrUpdate(context.Background(), &store.Item{
		ID:          uuid.NewString(),
		Type:        store.ItemTypeText,
		ContentHash: uuid.NewString(),
		PlainText:   "hello from the bus",
		CreatedAt:   1,
		LastUsedAt:  1,
	})
	require.NoError(t, err)
	return live
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBus_BroadcastsInsertToSubscriber(t *testing.T) {
	st := store.NewTestStore(t)
	bus := New(st)
	bus.Start(context.Background())
	defer bus.Stop()

	_, ch, backlog := bus.Subscribe()
	assert.Empty(t, backlog)

	item := insertItem(t, st)

	select {
	case ev := <-ch:
		assert.Equal(t, KindItemInserted, ev.Kind)
		assert.Equal(t, item.RowID, ev.RowID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for insert event")
	}
}

func TestBus_LateSubscriberGetsBacklog(t *testing.T) {
	st := store.NewTestStore(t)
	bus := New(st)
	bus.Start(context.Background())
	defer bus.Stop()

	item := insertItem(t, st)

	var backlog []Event
	waitFor(t, 2*time.Second, func() bool {
		_, _, bl := bus.Subscribe()
		backlog = bl
		return len(bl) > 0
	})

	found := false
	for _, ev := range backlog {
		if ev.Kind == KindItemInserted && ev.RowID == item.RowID {
			found = true
		}
	}
	assert.True(t, found)
}

type fakeUpdater struct {
	inserted []store.Item
	deleted  []int64
	pinned   []int64
	cleared  int
}

func (f *fakeUpdater) OnInsert(item store.Item)        { f.inserted = append(f.inserted, item) }
func (f *fakeUpdater) OnDelete(rowID int64)            { f.deleted = append(f.deleted, rowID) }
func (f *fakeUpdater) OnPin(rowID int64, isPinned bool) { f.pinned = append(f.pinned, rowID) }
func (f *fakeUpdater) OnClearAll()                      { f.cleared++ }

func TestDispatch_RoutesInsertAndDeleteToUpdater(t *testing.T) {
	st, dbPath := store.NewTestStoreFile(t)
	rs := store.NewTestReadStore(t, dbPath)

	bus := New(st)
	bus.Start(context.Background())
	defer bus.Stop()

	updater := &fakeUpdater{}
	dispatch := NewDispatch(bus, rs, updater)
	dispatch.Start(context.Background())
	defer dispatch.Stop()

	item := insertItem(t, st)
	waitFor(t, 2*time.Second, func() bool { return len(updater.inserted) > 0 })
	assert.Equal(t, item.ID, updater.inserted[0].ID)

	_, err := st.Delete(context.Background(), item.ID)
	require.NoError(t, err)
	waitFor(t, 2*time.Second, func() bool { return len(updater.deleted) > 0 })
	assert.Equal(t, item.RowID, updater.deleted[0])
}

func TestBus_PublishDeliversSettingsAndStatsEvents(t *testing.T) {
	st := store.NewTestStore(t)
	bus := New(st)
	bus.Start(context.Background())
	defer bus.Stop()

	_, ch, _ := bus.Subscribe()

	settings := &config.Settings{MaxItems: 42}
	bus.Publish(Event{Kind: KindSettingsChanged, Settings: settings})

	select {
	case ev := <-ch:
		require.Equal(t, KindSettingsChanged, ev.Kind)
		require.Same(t, settings, ev.Settings)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for settings event")
	}

	bus.Publish(Event{Kind: KindStatsChanged, Stats: &StatsSnapshot{ItemCount: 7}})
	select {
	case ev := <-ch:
		require.Equal(t, KindStatsChanged, ev.Kind)
		require.EqualValues(t, 7, ev.Stats.ItemCount)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stats event")
	}
}

// TestBus_PublishSeqNeverCollidesWithOutboxCursor guards the bug this test
// would have caught: Publish must never advance lastSeq, the cursor poll()
// uses to page through the outbox table, or a burst of synthetic events
// published between two polls would make poll() skip real outbox rows.
func TestBus_PublishSeqNeverCollidesWithOutboxCursor(t *testing.T) {
	st := store.NewTestStore(t)
	bus := New(st)
	bus.Start(context.Background())
	defer bus.Stop()

	_, ch, _ := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Kind: KindStatsChanged, Stats: &StatsSnapshot{}})
	}
	item := insertItem(t, st)

	var sawInsert bool
	for !sawInsert {
		select {
		case ev := <-ch:
			if ev.Kind == KindItemInserted {
				assert.Equal(t, item.RowID, ev.RowID)
				sawInsert = true
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for insert event after synthetic publishes")
		}
	}
}
