package store

import (
	"database/sql"
	"fmt"
)

// currentSchemaVersion is bumped whenever a migrationStep is added below.
const currentSchemaVersion = "1"

// migrationStep brings a database at a known schema version forward one
// step and reports the version it lands on.
type migrationStep struct {
	to string
	fn func(*sql.DB) error
}

// migrationSteps maps a schema version to the step that advances a database
// away from it. Empty today since version "1" is also currentSchemaVersion;
// future schema changes add an entry keyed by the version being migrated
// away from.
var migrationSteps = map[string]migrationStep{}

// Migrate brings db up to currentSchemaVersion, creating the schema from
// scratch on a new database or running forward-only steps on an existing
// one. Mirrors the teacher's GetSchemaVersion/UpdateSchemaVersion pattern.
func Migrate(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if version == "0" {
		return CreateSchema(db)
	}

	for version != currentSchemaVersion {
		step, ok := migrationSteps[version]
		if !ok {
			return fmt.Errorf("store: no migration step from schema version %q", version)
		}
		if err := step.fn(db); err != nil {
			return fmt.Errorf("store: migrate from %q to %q: %w", version, step.to, err)
		}
		if err := UpdateSchemaVersion(db, step.to); err != nil {
			return err
		}
		version = step.to
	}

	return nil
}

// rebuildFTSFromItems rebuilds items_fts from the live contents of items.
// Needed the first time an external-content FTS5 table is introduced on a
// database that already has rows (spec §6.3's migration trap: the shadow
// tables start out empty and must be backfilled explicitly, since FTS5
// triggers only fire on subsequent writes).
func rebuildFTSFromItems(db *sql.DB) error {
	_, err := db.Exec(`INSERT INTO items_fts(items_fts) VALUES('rebuild')`)
	if err != nil {
		return fmt.Errorf("store: rebuild items_fts: %w", err)
	}
	return nil
}

// RebuildFTSIndex re-syncs items_fts with items from scratch, for
// recovering from an items_fts that has drifted (e.g. after restoring items
// from a backup taken without it). No CLI command calls it.
func (s *Store) RebuildFTSIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rebuildFTSFromItems(s.db)
}
