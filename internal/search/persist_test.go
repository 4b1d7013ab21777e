package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/store"
)

// newTestEngineAt builds an Engine against a fresh read connection to an
// already-created file-backed database, simulating a second process (or a
// fresh process start) observing the same data root.
func newTestEngineAt(t *testing.T, dbPath string) *Engine {
	t.Helper()
	rs := store.NewTestReadStore(t, dbPath)
	settings := config.Default()
	settings.ShortQueryCacheSize = 100

	e, err := New(rs, settings)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestSaveLoadIndexSnapshot_RoundTrips(t *testing.T) {
	st, dbPath := store.NewTestStoreFile(t)
	insertItem(t, st, "the quick brown fox", "")
	insertItem(t, st, "jumps over the lazy dog", "")

	e := newTestEngineAt(t, dbPath)
	ctx := context.Background()
	page, err := e.Search(ctx, Request{Query: "quick", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	root := t.TempDir()
	require.NoError(t, e.SaveIndexSnapshot(root))
	assert.FileExists(t, filepath.Join(root, "fuzzy_index.bin"))
	assert.FileExists(t, filepath.Join(root, "fuzzy_index.sha256"))

	reloaded := newTestEngineAt(t, dbPath)
	reloaded.LoadIndexSnapshot(ctx, root)
	assert.True(t, reloaded.fuzzy.built)
	assert.Equal(t, e.fuzzy.Size(), reloaded.fuzzy.Size())

	reloadedPage, err := reloaded.Search(ctx, Request{Query: "quick", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, reloadedPage.Items, 1)
}

func TestLoadIndexSnapshot_MissingFileIsNotAnError(t *testing.T) {
	_, dbPath := store.NewTestStoreFile(t)
	e := newTestEngineAt(t, dbPath)

	e.LoadIndexSnapshot(context.Background(), t.TempDir())
	assert.False(t, e.fuzzy.built)
}

func TestLoadIndexSnapshot_CorruptChecksumIsDiscarded(t *testing.T) {
	st, dbPath := store.NewTestStoreFile(t)
	insertItem(t, st, "some clipboard text", "")

	e := newTestEngineAt(t, dbPath)
	_, err := e.Search(context.Background(), Request{Query: "clipboard", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	root := t.TempDir()
	require.NoError(t, e.SaveIndexSnapshot(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "fuzzy_index.bin"), []byte("tampered"), 0o644))

	reloaded := newTestEngineAt(t, dbPath)
	reloaded.LoadIndexSnapshot(context.Background(), root)
	assert.False(t, reloaded.fuzzy.built)
}

func TestLoadIndexSnapshot_StaleGenerationForcesRebuildOnNextQuery(t *testing.T) {
	st, dbPath := store.NewTestStoreFile(t)
	insertItem(t, st, "first item", "")

	e := newTestEngineAt(t, dbPath)
	_, err := e.Search(context.Background(), Request{Query: "first", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	root := t.TempDir()
	require.NoError(t, e.SaveIndexSnapshot(root))

	// A mutation after the snapshot was taken advances mutation_seq, so the
	// persisted generation is now stale.
	insertItem(t, st, "second item", "")

	reloaded := newTestEngineAt(t, dbPath)
	reloaded.LoadIndexSnapshot(context.Background(), root)
	assert.Equal(t, int64(-1), reloaded.fuzzy.generation)

	page, err := reloaded.Search(context.Background(), Request{Query: "second", Mode: ModeFuzzy, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}
