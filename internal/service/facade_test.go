package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suehn/scopy/internal/ingest"
	"github.com/suehn/scopy/internal/pasteboard"
	"github.com/suehn/scopy/internal/search"
	"github.com/suehn/scopy/internal/store"
)

func newTestFacade(t *testing.T) (*Facade, *pasteboard.MemoryWriter) {
	t.Helper()
	root := t.TempDir()
	writer := pasteboard.NewMemoryWriter()
	f := New(root, writer)
	require.NoError(t, f.Start(context.Background()))
	t.Cleanup(f.Stop)
	return f, writer
}

func submitAndWait(t *testing.T, f *Facade, c ingest.Capture) ingest.Result {
	t.Helper()
	ch, err := f.Submit(c)
	require.NoError(t, err)
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ingest result")
		return ingest.Result{}
	}
}

func TestStart_CreatesOnDiskLayout(t *testing.T) {
	root := t.TempDir()
	f := New(root, pasteboard.NewMemoryWriter())
	require.NoError(t, f.Start(context.Background()))
	defer f.Stop()

	assert.FileExists(t, filepath.Join(root, "clipboard.db"))
	assert.DirExists(t, filepath.Join(root, "content"))
	assert.DirExists(t, filepath.Join(root, "ingest_spool"))
	assert.FileExists(t, filepath.Join(root, "scopy.lock"))
}

func TestStart_TwiceOnSameFacadeReturnsAlreadyStarted(t *testing.T) {
	f, _ := newTestFacade(t)
	err := f.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStart_SecondFacadeOverSameRootFailsWithLockHeld(t *testing.T) {
	root := t.TempDir()
	first := New(root, pasteboard.NewMemoryWriter())
	require.NoError(t, first.Start(context.Background()))
	defer first.Stop()

	second := New(root, pasteboard.NewMemoryWriter())
	err := second.Start(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestMethodsBeforeStart_ReturnNotStarted(t *testing.T) {
	f := New(t.TempDir(), pasteboard.NewMemoryWriter())
	_, err := f.FetchRecent(context.Background(), 10, 0, store.Filters{})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestIngestPinDeleteRoundTrip(t *testing.T) {
	f, writer := newTestFacade(t)
	ctx := context.Background()

	result := submitAndWait(t, f, ingest.Capture{Bytes: []byte("hello clipboard"), TypeHint: "text"})
	require.True(t, result.WasNew)

	page, err := f.FetchRecent(ctx, 10, 0, store.Filters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, result.Item.ID, page.Items[0].ID)

	require.NoError(t, f.Pin(ctx, result.Item.ID))
	page, err = f.FetchRecent(ctx, 10, 0, store.Filters{})
	require.NoError(t, err)
	assert.True(t, page.Items[0].IsPinned)

	require.NoError(t, f.CopyToPasteboard(ctx, result.Item.ID))
	assert.Equal(t, 1, writer.Writes())

	require.NoError(t, f.Unpin(ctx, result.Item.ID))
	require.NoError(t, f.Delete(ctx, result.Item.ID))

	page, err = f.FetchRecent(ctx, 10, 0, store.Filters{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestDelete_UnknownIDReturnsNotFound(t *testing.T) {
	f, _ := newTestFacade(t)
	err := f.Delete(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSearch_FindsIngestedText(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	submitAndWait(t, f, ingest.Capture{Bytes: []byte("the quick brown fox"), TypeHint: "text"})

	page, err := f.Search(ctx, search.Request{Query: "quick", Mode: search.ModeExact, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestUpdateSettings_PersistsAndIsReadableBack(t *testing.T) {
	f, _ := newTestFacade(t)

	s := f.GetSettings()
	s.MaxItems = 7
	require.NoError(t, f.UpdateSettings(s))

	assert.Equal(t, 7, f.GetSettings().MaxItems)

	data, err := os.ReadFile(filepath.Join(f.root, "settings.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_items: 7")
}

func TestUpdateSettings_RejectsInvalid(t *testing.T) {
	f, _ := newTestFacade(t)

	s := f.GetSettings()
	s.MaxItems = -1
	err := f.UpdateSettings(s)
	assert.Error(t, err)
}

func TestGetStats_ReflectsIngestedItems(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	submitAndWait(t, f, ingest.Capture{Bytes: []byte("short text"), TypeHint: "text"})

	stats, err := f.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ItemCount)
	assert.Greater(t, stats.InlineBytes, int64(0))
}

func TestEvents_SubscriberObservesInsert(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	id, ch, _, err := f.Events()
	require.NoError(t, err)
	defer f.Unsubscribe(id)

	submitAndWait(t, f, ingest.Capture{Bytes: []byte("event payload"), TypeHint: "text"})

	select {
	case ev := <-ch:
		assert.Equal(t, "item_inserted", string(ev.Kind))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for insert event")
	}
}

func TestRunCleanup_EvictsOverCap(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()

	s := f.GetSettings()
	s.MaxItems = 1
	require.NoError(t, f.UpdateSettings(s))

	submitAndWait(t, f, ingest.Capture{Bytes: []byte("first"), TypeHint: "text"})
	submitAndWait(t, f, ingest.Capture{Bytes: []byte("second"), TypeHint: "text"})

	result, err := f.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeletedCount)
}
