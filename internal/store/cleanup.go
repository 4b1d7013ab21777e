package store

import (
	"context"
	"fmt"
)

// CleanupPlan is produced by the cleanup scheduler's planning phase (run on
// the ReadStore) and executed here in one transaction (spec §4.6: planning
// and execution are split across the read and write connections).
type CleanupPlan struct {
	RowIDs []int64 // rows to delete, oldest-unpinned-first
}

// CleanupResult reports what a plan's execution actually removed.
type CleanupResult struct {
	DeletedRowIDs []int64
	StorageRefs   []string // external refs the caller must reclaim off the main thread
}

// Cleanup implements cleanup(plan) (spec §4.2): executes the planned
// deletions in one transaction and returns the external refs to reclaim.
func (s *Store) Cleanup(ctx context.Context, plan CleanupPlan) (CleanupResult, error) {
	var result CleanupResult
	if len(plan.RowIDs) == 0 {
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		result = CleanupResult{}

		deleteStmt, err := tx.Prepare(`DELETE FROM items WHERE row_id = ?`)
		if err != nil {
			return err
		}
		defer deleteStmt.Close()

		fetchStmt, err := tx.Prepare(`SELECT size_bytes, is_pinned, storage_ref FROM items WHERE row_id = ?`)
		if err != nil {
			return err
		}
		defer fetchStmt.Close()

		for _, rowID := range plan.RowIDs {
			var sizeBytes int64
			var isPinned bool
			var storageRef string
			if err := fetchStmt.QueryRow(rowID).Scan(&sizeBytes, &isPinned, &storageRef); err != nil {
				continue // row already gone (e.g. concurrent explicit delete); skip, not fatal
			}

			if _, err := deleteStmt.Exec(rowID); err != nil {
				return fmt.Errorf("cleanup: delete row %d: %w", rowID, err)
			}
			if err := appendOutbox(tx, outboxKindDelete, rowID); err != nil {
				return err
			}
			if err := bumpCountersOnDelete(tx, sizeBytes, isPinned); err != nil {
				return err
			}

			result.DeletedRowIDs = append(result.DeletedRowIDs, rowID)
			if storageRef != "" {
				result.StorageRefs = append(result.StorageRefs, storageRef)
			}
		}

		if err := bumpMutationSeq(tx); err != nil {
			return err
		}

		return tx.Commit()
	})

	return result, err
}

// KnownStorageRefs returns the set of every non-empty storage_ref
// currently referenced by a live item, for the orphan sweep (spec §4.6)
// to compare against the content/ directory's actual entries.
func (s *Store) KnownStorageRefs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT storage_ref FROM items WHERE storage_ref IS NOT NULL AND storage_ref != ''`)
	if err != nil {
		return nil, fmt.Errorf("store: known_storage_refs: %w", err)
	}
	defer rows.Close()

	refs := make(map[string]bool)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs[ref] = true
	}
	return refs, rows.Err()
}
