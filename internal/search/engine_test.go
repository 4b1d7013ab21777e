package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	st, dbPath := store.NewTestStoreFile(t)
	rs := store.NewTestReadStore(t, dbPath)

	settings := config.Default()
	settings.ShortQueryCacheSize = 100

	e, err := New(rs, settings)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	return e, st
}

func insertItem(t *testing.T, st *store.Store, text string, appBundleID string) store.Item {
	t.Helper()
	ctx := context.Background()
	live, _, err := st.InsertOrUpdate(ctx, &store.Item{
		ID:          uuid.NewString(),
		Type:        store.ItemTypeText,
		ContentHash: uuid.NewString(),
		PlainText:   text,
		AppBundleID: appBundleID,
		CreatedAt:   100,
		LastUsedAt:  100,
		RawData:     []byte(text),
	})
	require.NoError(t, err)
	return live
}

func TestSearch_ExactShortQueryServesFromRecentMirror(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "alpha document", "")
	insertItem(t, st, "beta document", "")

	page, err := e.Search(context.Background(), Request{Query: "a", Mode: ModeExact, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, -1, page.Total)
}

func TestSearch_ExactMatchesFullTextToken(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "the quick brown fox", "")
	insertItem(t, st, "lazy dog sleeps", "")

	page, err := e.Search(context.Background(), Request{Query: "quick", Mode: ModeExact, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "the quick brown fox", page.Items[0].PlainText)
}

func TestSearch_FuzzyPlusRequiresContiguousSubstring(t *testing.T) {
	e, st := newTestEngine(t)
	x := insertItem(t, st, "foobar baz", "")
	insertItem(t, st, "f o o b a r wide", "")

	page, err := e.Search(context.Background(), Request{Query: "foobar", Mode: ModeFuzzyPlus, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, x.RowID, page.Items[0].RowID)
}

func TestSearch_FuzzyAllowsSubsequenceAcrossGaps(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "foobar baz", "")
	insertItem(t, st, "f-o-o-b-a-r wide gap", "")

	page, err := e.Search(context.Background(), Request{Query: "foobar", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestSearch_RegexMatchesAgainstShortQueryCache(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "error: file not found", "")
	insertItem(t, st, "all good here", "")

	page, err := e.Search(context.Background(), Request{Query: "^error:", Mode: ModeRegex, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "error: file not found", page.Items[0].PlainText)
}

func TestSearch_RegexInvalidPatternReturnsCompileError(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Search(context.Background(), Request{Query: "(unterminated", Mode: ModeRegex, Limit: 10})
	assert.ErrorIs(t, err, ErrRegexCompile)
}

func TestSearch_EmptyQueryExactReturnsMostRecent(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "older", "")
	insertItem(t, st, "newer", "")

	page, err := e.Search(context.Background(), Request{Query: "", Mode: ModeExact, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestSearch_PinnedItemsSortFirst(t *testing.T) {
	e, st := newTestEngine(t)
	insertItem(t, st, "zzz first inserted", "")
	second := insertItem(t, st, "zzz second inserted", "")
	require.NoError(t, st.UpdateMetadata(context.Background(), second.ID, store.MetadataDelta{IsPinned: boolPtr(true)}))

	page, err := e.Search(context.Background(), Request{Query: "zzz", Mode: ModeFuzzyPlus, Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.True(t, page.Items[0].IsPinned)
}

func TestExplain_ShortQueryForExactMode(t *testing.T) {
	e, _ := newTestEngine(t)

	ex := e.Explain(Request{Query: "a", Mode: ModeExact})
	assert.True(t, ex.IsShortQuery)
	assert.False(t, ex.WillUseFTS)
}

func TestExplain_LongQueryUsesFTSForExactMode(t *testing.T) {
	e, _ := newTestEngine(t)

	ex := e.Explain(Request{Query: "hello world", Mode: ModeExact})
	assert.False(t, ex.IsShortQuery)
	assert.True(t, ex.WillUseFTS)
}

func TestOnDelete_TombstonesFuzzySlotAndExcludesFromResults(t *testing.T) {
	e, st := newTestEngine(t)
	item := insertItem(t, st, "unique-marker-text", "")

	// force a fuzzy build so the slot exists before the delete
	_, err := e.Search(context.Background(), Request{Query: "unique", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)

	_, err = st.Delete(context.Background(), item.ID)
	require.NoError(t, err)
	e.OnDelete(item.RowID)

	assert.Equal(t, 1, e.Tombstones())
}

func boolPtr(b bool) *bool { return &b }
