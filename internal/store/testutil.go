package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// NewTestStore creates a fully configured in-memory Store for testing,
// mirroring the teacher's NewTestDB: schema applied, cleanup registered via
// t.Cleanup(). Use this for the bulk of store tests.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uniqueMemoryName(t))
	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, CreateSchema(db))

	s := &Store{db: db}
	return s
}

// NewTestStoreFile creates a file-backed Store in t.TempDir(), for tests
// that need persistence across connections (migration tests, WAL behavior).
func NewTestStoreFile(t testing.TB) (*Store, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "clipboard.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s, dbPath
}

// NewTestReadStore opens a read-only connection against an already-created
// file-backed database, for tests exercising ReadStore directly.
func NewTestReadStore(t testing.TB, dbPath string) *ReadStore {
	t.Helper()

	r, err := OpenRead(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return r
}

var memoryNameCounter int

// uniqueMemoryName gives each in-memory test database its own shared-cache
// name so parallel tests never see each other's rows.
func uniqueMemoryName(t testing.TB) string {
	memoryNameCounter++
	return fmt.Sprintf("%s-%d", t.Name(), memoryNameCounter)
}
