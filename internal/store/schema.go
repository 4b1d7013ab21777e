package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateSchema creates the items / items_fts / meta / outbox tables, their
// indexes, and the FTS sync triggers. Uses a transaction for the core tables
// so creation succeeds or fails together, mirroring the teacher's
// CreateSchema; the FTS5 virtual table and its triggers are created outside
// the transaction, since SQLite requires virtual table DDL to run outside
// an open write transaction in some builds.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("store: enable foreign keys: %w", err)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"items", createItemsTable},
		{"meta", createMetaTable},
		{"outbox", createOutboxTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("store: create %s table: %w", table.name, err)
		}
	}

	for i, idx := range getAllIndexes() {
		if _, err := tx.Exec(idx); err != nil {
			return fmt.Errorf("store: create index %d: %w", i+1, err)
		}
	}

	now := nowSeconds()
	bootstrapSQL := `
		INSERT INTO meta (key, value) VALUES
			('schema_version', '1'),
			('mutation_seq', '0'),
			('item_count', '0'),
			('unpinned_count', '0'),
			('total_size_bytes', '0'),
			('bootstrapped_at', ?)
	`
	if _, err := tx.Exec(bootstrapSQL, fmt.Sprintf("%f", now)); err != nil {
		return fmt.Errorf("store: bootstrap meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit schema transaction: %w", err)
	}

	if err := createFTSTable(db); err != nil {
		return fmt.Errorf("store: create items_fts: %w", err)
	}
	if err := createFTSTriggers(db); err != nil {
		return fmt.Errorf("store: create FTS triggers: %w", err)
	}

	return nil
}

// GetSchemaVersion reads meta.schema_version. Returns "0" for a database
// that predates the meta table entirely (new, unmigrated database).
func GetSchemaVersion(db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'").Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("store: check meta existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	var version string
	err = db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("store: schema_version key missing from meta")
	}
	if err != nil {
		return "", fmt.Errorf("store: query schema version: %w", err)
	}
	return version, nil
}

// UpdateSchemaVersion sets meta.schema_version, used by migrations.
func UpdateSchemaVersion(db *sql.DB, version string) error {
	_, err := db.Exec(`
		INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, version)
	if err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

const createItemsTable = `
CREATE TABLE items (
    row_id        INTEGER PRIMARY KEY,
    id            TEXT NOT NULL UNIQUE,
    type          TEXT NOT NULL,
    content_hash  TEXT NOT NULL,
    plain_text    TEXT,
    app_bundle_id TEXT,
    created_at    REAL NOT NULL,
    last_used_at  REAL NOT NULL,
    use_count     INTEGER NOT NULL DEFAULT 1,
    is_pinned     INTEGER NOT NULL DEFAULT 0,
    size_bytes    INTEGER NOT NULL,
    storage_ref   TEXT,
    raw_data      BLOB
)
`

const createMetaTable = `
CREATE TABLE meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
)
`

const createOutboxTable = `
CREATE TABLE outbox (
    seq     INTEGER PRIMARY KEY,
    kind    TEXT NOT NULL,
    payload BLOB NOT NULL
)
`

func getAllIndexes() []string {
	return []string{
		"CREATE UNIQUE INDEX idx_items_content_hash ON items(content_hash)",
		"CREATE INDEX idx_items_pinned_recency ON items(is_pinned DESC, last_used_at DESC)",
		"CREATE INDEX idx_items_type_recency ON items(type, last_used_at DESC)",
		"CREATE INDEX idx_items_app_recency ON items(app_bundle_id, last_used_at DESC)",
	}
}

// createFTSTable creates the external-content FTS5 index over plain_text.
// "content='items', content_rowid='row_id'" means plain_text is never
// duplicated on disk outside the items table itself; remove_diacritics 2
// gives the Unicode folding (diacritic-insensitive) matching spec requires.
func createFTSTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE VIRTUAL TABLE items_fts USING fts5(
			plain_text,
			content='items',
			content_rowid='row_id',
			tokenize='unicode61 remove_diacritics 2'
		)
	`)
	return err
}

// createFTSTriggers keeps items_fts in sync with items.plain_text. The
// update trigger is scoped to "OF plain_text" so metadata-only writes
// (dedup bump, pin/unpin, use_count) never touch the FTS shadow tables —
// this is the write-amplification constraint the spec calls out explicitly.
func createFTSTriggers(db *sql.DB) error {
	triggers := []string{
		`CREATE TRIGGER items_fts_insert AFTER INSERT ON items BEGIN
			INSERT INTO items_fts(rowid, plain_text) VALUES (new.row_id, new.plain_text);
		END`,

		`CREATE TRIGGER items_fts_delete AFTER DELETE ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, plain_text) VALUES('delete', old.row_id, old.plain_text);
		END`,

		`CREATE TRIGGER items_fts_update AFTER UPDATE OF plain_text ON items BEGIN
			INSERT INTO items_fts(items_fts, rowid, plain_text) VALUES('delete', old.row_id, old.plain_text);
			INSERT INTO items_fts(rowid, plain_text) VALUES (new.row_id, new.plain_text);
		END`,
	}

	for i, trigger := range triggers {
		if _, err := db.Exec(trigger); err != nil {
			return fmt.Errorf("store: create trigger %d: %w", i+1, err)
		}
	}
	return nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
