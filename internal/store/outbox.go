package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// Outbox event kinds, appended in the same transaction as the write that
// produced them (spec §3.2.6) and consumed by the event bus.
const (
	outboxKindInsert         = "item_inserted"
	outboxKindDedupHit       = "item_touched"
	outboxKindMetadataUpdate = "item_metadata_updated"
	outboxKindDelete         = "item_deleted"
	outboxKindClearAll       = "items_cleared"
)

type outboxPayload struct {
	RowID int64 `json:"row_id,omitempty"`
}

// appendOutbox inserts one outbox row inside the caller's transaction.
func appendOutbox(tx *sql.Tx, kind string, rowID int64) error {
	payload, err := json.Marshal(outboxPayload{RowID: rowID})
	if err != nil {
		return fmt.Errorf("store: marshal outbox payload: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO outbox (kind, payload) VALUES (?, ?)`, kind, payload)
	if err != nil {
		return fmt.Errorf("store: append outbox: %w", err)
	}
	return nil
}

// FetchOutboxSince returns outbox rows with seq > afterSeq in ascending
// order, used by the event bus to resume after a restart without dropping
// events appended while it was down.
func (s *Store) FetchOutboxSince(afterSeq int64, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.Query(
		`SELECT seq, kind, payload FROM outbox WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("store: fetch outbox: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.Seq, &e.Kind, &e.Payload); err != nil {
			return nil, fmt.Errorf("store: scan outbox row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// TrimOutbox deletes outbox rows at or below keepAboveSeq, bounding the
// table's growth once the event bus has durably delivered them.
func (s *Store) TrimOutbox(keepAboveSeq int64) error {
	_, err := s.db.Exec(`DELETE FROM outbox WHERE seq <= ?`, keepAboveSeq)
	if err != nil {
		return fmt.Errorf("store: trim outbox: %w", err)
	}
	return nil
}

// bumpMutationSeq increments meta.mutation_seq inside the caller's
// transaction; every committed write does this exactly once.
func bumpMutationSeq(tx *sql.Tx) error {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES ('mutation_seq', '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)
	`)
	return err
}

func bumpCountersOnInsert(tx *sql.Tx, sizeBytes int64) error {
	if _, err := incrCounter(tx, "item_count", 1); err != nil {
		return err
	}
	if _, err := incrCounter(tx, "unpinned_count", 1); err != nil {
		return err
	}
	if _, err := incrCounter(tx, "total_size_bytes", sizeBytes); err != nil {
		return err
	}
	return nil
}

func bumpCountersOnDelete(tx *sql.Tx, sizeBytes int64, wasPinned bool) error {
	if _, err := incrCounter(tx, "item_count", -1); err != nil {
		return err
	}
	if !wasPinned {
		if _, err := incrCounter(tx, "unpinned_count", -1); err != nil {
			return err
		}
	}
	if _, err := incrCounter(tx, "total_size_bytes", -sizeBytes); err != nil {
		return err
	}
	return nil
}

func incrCounter(tx *sql.Tx, key string, delta int64) (int64, error) {
	_, err := tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + ? AS TEXT)
	`, key, delta, delta)
	return delta, err
}

// recomputeCounters rebuilds item_count/unpinned_count/total_size_bytes
// from a full scan of items; used by delete_all, where a batched statement
// makes per-row incrCounter calls impractical (Cleanup deletes row by row
// and uses bumpCountersOnDelete instead).
func recomputeCounters(tx *sql.Tx) error {
	var itemCount, unpinnedCount, totalSize int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&itemCount); err != nil {
		return err
	}
	if err := tx.QueryRow(`SELECT COUNT(*) FROM items WHERE is_pinned = 0`).Scan(&unpinnedCount); err != nil {
		return err
	}
	if err := tx.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM items`).Scan(&totalSize); err != nil {
		return err
	}

	for key, value := range map[string]int64{
		"item_count":       itemCount,
		"unpinned_count":   unpinnedCount,
		"total_size_bytes": totalSize,
	} {
		if _, err := tx.Exec(`
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, fmt.Sprintf("%d", value)); err != nil {
			return err
		}
	}
	return nil
}
