// Package store implements the Persistence Repository (spec §4.2): a
// single-writer, serialized-access embedded relational store with an
// external-content FTS5 index, mirroring the schema/fts_index/migration
// split of the teacher's internal/storage package but retargeted to the
// items/items_fts/meta/outbox schema of the clipboard-history domain.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"github.com/suehn/scopy/internal/logging"
)

// Store owns the single writable connection to the database. All mutating
// operations serialize through mu, the mutex/actor the spec requires in
// place of sharing a connection pointer across goroutines.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the database at dbPath for writing,
// configures WAL journaling and a bounded busy-timeout, and runs migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // single writer: one physical connection, serialized by mu anyway

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("opened writer connection")
	return &Store{db: db}, nil
}

// Close releases the writer connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components (cleanup, migrations)
// that need direct squirrel access under the caller's own locking.
func (s *Store) DB() *sql.DB { return s.db }

// InsertOrUpdate implements insert_or_update (spec §4.2): a new row is
// inserted on a fresh content_hash, or the existing row is bumped
// (last_used_at, use_count) on a dedup hit. Returns the live row and
// whether it was newly created. One outbox event is appended in the same
// transaction.
func (s *Store) InsertOrUpdate(ctx context.Context, item *Item) (live Item, wasNew bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.withRetry(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		var existing Item
		scanErr := tx.QueryRowContext(ctx,
			`SELECT row_id, id, type, content_hash, plain_text, app_bundle_id,
			        created_at, last_used_at, use_count, is_pinned, size_bytes, storage_ref, raw_data
			 FROM items WHERE content_hash = ?`, item.ContentHash).
			Scan(&existing.RowID, &existing.ID, &existing.Type, &existing.ContentHash, &existing.PlainText,
				&existing.AppBundleID, &existing.CreatedAt, &existing.LastUsedAt, &existing.UseCount,
				&existing.IsPinned, &existing.SizeBytes, &existing.StorageRef, &existing.RawData)

		switch {
		case errors.Is(scanErr, sql.ErrNoRows):
			res, insErr := tx.ExecContext(ctx,
				`INSERT INTO items (id, type, content_hash, plain_text, app_bundle_id,
				                     created_at, last_used_at, use_count, is_pinned, size_bytes, storage_ref, raw_data)
				 VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, ?, ?, ?)`,
				item.ID, item.Type, item.ContentHash, item.PlainText, item.AppBundleID,
				item.CreatedAt, item.LastUsedAt, item.SizeBytes, item.StorageRef, item.RawData)
			if insErr != nil {
				return insErr
			}
			rowID, idErr := res.LastInsertId()
			if idErr != nil {
				return idErr
			}
			live = *item
			live.RowID = rowID
			live.UseCount = 1
			live.IsPinned = false
			wasNew = true

			if err := appendOutbox(tx, outboxKindInsert, rowID); err != nil {
				return err
			}
			if err := bumpCountersOnInsert(tx, item.SizeBytes); err != nil {
				return err
			}
		case scanErr != nil:
			return scanErr
		default:
			live = existing
			live.LastUsedAt = item.LastUsedAt
			live.UseCount = existing.UseCount + 1
			if _, updErr := tx.ExecContext(ctx,
				`UPDATE items SET last_used_at = ?, use_count = use_count + 1 WHERE row_id = ?`,
				item.LastUsedAt, existing.RowID); updErr != nil {
				return updErr
			}
			wasNew = false
			if err := appendOutbox(tx, outboxKindDedupHit, existing.RowID); err != nil {
				return err
			}
		}

		if err := bumpMutationSeq(tx); err != nil {
			return err
		}

		return tx.Commit()
	})

	return live, wasNew, err
}

// UpdateMetadata implements update_metadata (spec §4.2): it never touches
// plain_text, so the FTS trigger (scoped to "OF plain_text") does not fire.
func (s *Store) UpdateMetadata(ctx context.Context, id string, delta MetadataDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		builder := sq.Update("items").Where(sq.Eq{"id": id})
		touched := false
		if delta.IsPinned != nil {
			builder = builder.Set("is_pinned", boolToInt(*delta.IsPinned))
			touched = true
		}
		if delta.LastUsedAt != nil {
			builder = builder.Set("last_used_at", *delta.LastUsedAt)
			touched = true
		}
		if delta.UseCount != nil {
			builder = builder.Set("use_count", *delta.UseCount)
			touched = true
		}
		if !touched {
			return nil
		}

		res, err := builder.RunWith(tx).Exec()
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}

		var rowID int64
		if err := tx.QueryRowContext(ctx, `SELECT row_id FROM items WHERE id = ?`, id).Scan(&rowID); err != nil {
			return err
		}
		if err := appendOutbox(tx, outboxKindMetadataUpdate, rowID); err != nil {
			return err
		}
		if err := bumpMutationSeq(tx); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// Delete implements delete (spec §4.2): removes the item, its FTS row (via
// trigger), and appends a tombstone outbox event. The caller (Service
// Facade) is responsible for reclaiming the external blob, if any.
func (s *Store) Delete(ctx context.Context, id string) (storageRef string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.withRetry(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		var rowID int64
		var sizeBytes int64
		var isPinned bool
		scanErr := tx.QueryRowContext(ctx,
			`SELECT row_id, size_bytes, is_pinned, storage_ref FROM items WHERE id = ?`, id).
			Scan(&rowID, &sizeBytes, &isPinned, &storageRef)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if scanErr != nil {
			return scanErr
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE row_id = ?`, rowID); err != nil {
			return err
		}
		if err := appendOutbox(tx, outboxKindDelete, rowID); err != nil {
			return err
		}
		if err := bumpCountersOnDelete(tx, sizeBytes, isPinned); err != nil {
			return err
		}
		if err := bumpMutationSeq(tx); err != nil {
			return err
		}

		return tx.Commit()
	})

	return storageRef, err
}

// DeleteAll implements delete_all (spec §4.2): batched deletion in one
// transaction, returning external storage refs for the caller to reclaim
// off the main thread.
func (s *Store) DeleteAll(ctx context.Context, keepPinned bool) (storageRefs []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.withRetry(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback()

		where := "storage_ref IS NOT NULL AND storage_ref != ''"
		if keepPinned {
			where += " AND is_pinned = 0"
		}
		rows, err := tx.QueryContext(ctx, `SELECT storage_ref FROM items WHERE `+where)
		if err != nil {
			return err
		}
		storageRefs = storageRefs[:0]
		for rows.Next() {
			var ref string
			if err := rows.Scan(&ref); err != nil {
				rows.Close()
				return err
			}
			storageRefs = append(storageRefs, ref)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		deleteWhere := ""
		if keepPinned {
			deleteWhere = " WHERE is_pinned = 0"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM items`+deleteWhere); err != nil {
			return err
		}
		if err := appendOutbox(tx, outboxKindClearAll, 0); err != nil {
			return err
		}
		if err := recomputeCounters(tx); err != nil {
			return err
		}
		if err := bumpMutationSeq(tx); err != nil {
			return err
		}

		return tx.Commit()
	})

	return storageRefs, err
}

// withRetry runs fn once, retrying a single time with cenkalti/backoff if
// the error classifies as DbBusy, matching the spec's single-retry-on-busy
// contract rather than an unbounded retry loop.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1)
	b = backoff.WithContext(b, ctx)

	var lastErr error
	op := func() error {
		err := fn()
		lastErr = classifyErr(err)
		if errors.Is(lastErr, ErrDbBusy) {
			return lastErr // retryable
		}
		return backoff.Permanent(lastErr)
	}

	if err := backoff.Retry(op, b); err != nil {
		if perm, ok := err.(*backoff.PermanentError); ok {
			return perm.Unwrap()
		}
		return lastErr
	}
	return nil
}

// classifyErr maps a raw sqlite3 error to the spec's error taxonomy; nil
// and unrecognized errors pass through unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrDbBusy, err)
		case sqlite3.ErrFull:
			return fmt.Errorf("%w: %v", ErrDiskFull, err)
		case sqlite3.ErrCorrupt:
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var log = logging.WithComponent("store")
