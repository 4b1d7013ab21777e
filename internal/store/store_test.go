package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(hash, text string, at float64) *Item {
	return &Item{
		ID:          uuid.NewString(),
		Type:        ItemTypeText,
		ContentHash: hash,
		PlainText:   text,
		CreatedAt:   at,
		LastUsedAt:  at,
		SizeBytes:   int64(len(text)),
	}
}

func TestInsertOrUpdate_NewItem(t *testing.T) {
	s := NewTestStore(t)

	live, wasNew, err := s.InsertOrUpdate(context.Background(), newItem("hash-a", "hello world", 100))
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, 1, live.UseCount)
	assert.False(t, live.IsPinned)
	assert.NotZero(t, live.RowID)
}

func TestInsertOrUpdate_DedupHitBumpsUseCountAndTimestamp(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	first, _, err := s.InsertOrUpdate(ctx, newItem("hash-b", "duplicate me", 100))
	require.NoError(t, err)

	second, wasNew, err := s.InsertOrUpdate(ctx, newItem("hash-b", "duplicate me", 200))
	require.NoError(t, err)

	assert.False(t, wasNew)
	assert.Equal(t, first.RowID, second.RowID, "row_id must not change on dedup hit")
	assert.Equal(t, 2, second.UseCount)
	assert.Equal(t, float64(200), second.LastUsedAt)
}

func TestUpdateMetadata_PinDoesNotTouchPlainText(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	item := newItem("hash-c", "pin me", 100)
	live, _, err := s.InsertOrUpdate(ctx, item)
	require.NoError(t, err)

	pinned := true
	require.NoError(t, s.UpdateMetadata(ctx, live.ID, MetadataDelta{IsPinned: &pinned}))

	var gotPinned bool
	var gotPlainText string
	require.NoError(t, s.db.QueryRow(`SELECT is_pinned, plain_text FROM items WHERE row_id = ?`, live.RowID).
		Scan(&gotPinned, &gotPlainText))
	assert.True(t, gotPinned)
	assert.Equal(t, "pin me", gotPlainText)
}

func TestUpdateMetadata_UnknownIDReturnsNotFound(t *testing.T) {
	s := NewTestStore(t)

	pinned := true
	err := s.UpdateMetadata(context.Background(), uuid.NewString(), MetadataDelta{IsPinned: &pinned})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_RemovesItemAndFTSRow(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	live, _, err := s.InsertOrUpdate(ctx, newItem("hash-d", "searchable text", 100))
	require.NoError(t, err)

	_, err = s.Delete(ctx, live.ID)
	require.NoError(t, err)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM items_fts WHERE rowid = ?`, live.RowID).Scan(&count))
	assert.Zero(t, count)
}

func TestDelete_UnknownIDReturnsNotFound(t *testing.T) {
	s := NewTestStore(t)
	_, err := s.Delete(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAll_KeepsPinnedItems(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	pinnedItem, _, err := s.InsertOrUpdate(ctx, newItem("hash-e", "keep me", 100))
	require.NoError(t, err)
	pinned := true
	require.NoError(t, s.UpdateMetadata(ctx, pinnedItem.ID, MetadataDelta{IsPinned: &pinned}))

	_, _, err = s.InsertOrUpdate(ctx, newItem("hash-f", "delete me", 100))
	require.NoError(t, err)

	_, err = s.DeleteAll(ctx, true)
	require.NoError(t, err)

	var remaining int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestStatistics_TracksCountsAndSize(t *testing.T) {
	s, dbPath := NewTestStoreFile(t)
	ctx := context.Background()

	_, _, err := s.InsertOrUpdate(ctx, newItem("hash-g", "twelve bytes", 100))
	require.NoError(t, err)

	r := NewTestReadStore(t, dbPath)
	stats, err := r.Statistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.ItemCount)
	assert.EqualValues(t, 1, stats.UnpinnedCount)
	assert.EqualValues(t, len("twelve bytes"), stats.TotalSizeBytes)
}

func TestFetchRecent_OrdersByPinnedThenRecency(t *testing.T) {
	s, dbPath := NewTestStoreFile(t)
	ctx := context.Background()

	old, _, err := s.InsertOrUpdate(ctx, newItem("hash-h", "old", 100))
	require.NoError(t, err)
	newer, _, err := s.InsertOrUpdate(ctx, newItem("hash-i", "newer", 200))
	require.NoError(t, err)

	pinned := true
	require.NoError(t, s.UpdateMetadata(ctx, old.ID, MetadataDelta{IsPinned: &pinned}))

	r := NewTestReadStore(t, dbPath)
	page, err := r.FetchRecent(ctx, 10, 0, Filters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, old.RowID, page.Items[0].RowID, "pinned item sorts first regardless of recency")
	assert.Equal(t, newer.RowID, page.Items[1].RowID)
	assert.False(t, page.HasMore)
}

func TestFetchRecent_HasMoreWithoutCount(t *testing.T) {
	s, dbPath := NewTestStoreFile(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := s.InsertOrUpdate(ctx, newItem(uuid.NewString(), "item", float64(i)))
		require.NoError(t, err)
	}

	r := NewTestReadStore(t, dbPath)
	page, err := r.FetchRecent(ctx, 2, 0, Filters{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
}

func TestFetchByRowIDs_PreservesCallerOrder(t *testing.T) {
	s, dbPath := NewTestStoreFile(t)
	ctx := context.Background()

	a, _, err := s.InsertOrUpdate(ctx, newItem("hash-j", "a", 1))
	require.NoError(t, err)
	b, _, err := s.InsertOrUpdate(ctx, newItem("hash-k", "b", 2))
	require.NoError(t, err)

	r := NewTestReadStore(t, dbPath)
	ordered, err := r.FetchByRowIDs(ctx, []int64{b.RowID, a.RowID})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, b.RowID, ordered[0].RowID)
	assert.Equal(t, a.RowID, ordered[1].RowID)
}

func TestCleanup_DeletesPlannedRowsAndReturnsRefs(t *testing.T) {
	s := NewTestStore(t)
	ctx := context.Background()

	item := newItem("hash-l", "evict me", 100)
	item.StorageRef = "/tmp/scopy/content/evict-me.bin"
	live, _, err := s.InsertOrUpdate(ctx, item)
	require.NoError(t, err)

	result, err := s.Cleanup(ctx, CleanupPlan{RowIDs: []int64{live.RowID}})
	require.NoError(t, err)
	assert.Equal(t, []int64{live.RowID}, result.DeletedRowIDs)
	assert.Equal(t, []string{item.StorageRef}, result.StorageRefs)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Zero(t, count)
}

func TestGetSchemaVersion_NewDatabaseIsZero(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, "0", version)
}

func TestMigrate_FreshDatabaseReachesCurrentVersion(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(db))

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}
