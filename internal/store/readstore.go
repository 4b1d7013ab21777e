package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ReadStore is the independent read-only connection the search engine and
// the cleanup scheduler's planning phase use, so readers never contend with
// the writer's transaction (spec §4.2's concurrency contract).
type ReadStore struct {
	db *sql.DB
}

// OpenRead opens a read-only connection to dbPath with the same WAL/
// busy-timeout configuration as the writer.
func OpenRead(dbPath string) (*ReadStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open read connection: %w", err)
	}
	return &ReadStore{db: db}, nil
}

// Close releases the read connection.
func (r *ReadStore) Close() error {
	return r.db.Close()
}

// DB exposes the underlying *sql.DB, e.g. for the search engine's FTS
// queries via squirrel.
func (r *ReadStore) DB() *sql.DB { return r.db }

// Conn returns a dedicated *sql.Conn from the read pool, so a caller can
// hold one connection across several queries. The Service Facade does not
// use it.
func (r *ReadStore) Conn(ctx context.Context) (*sql.Conn, error) {
	return r.db.Conn(ctx)
}

// FetchRecent implements fetch_recent (spec §4.2): ordered by
// (is_pinned DESC, last_used_at DESC, row_id ASC) for stable paging,
// requesting limit+1 rows so HasMore never needs a COUNT query.
func (r *ReadStore) FetchRecent(ctx context.Context, limit, offset int, filters Filters) (Page, error) {
	builder := sq.Select(itemColumns...).
		From("items").
		OrderBy("is_pinned DESC", "last_used_at DESC", "row_id ASC").
		Limit(uint64(limit + 1)).
		Offset(uint64(offset))

	if filters.Type != "" {
		builder = builder.Where(sq.Eq{"type": filters.Type})
	}
	if filters.AppBundleID != "" {
		builder = builder.Where(sq.Eq{"app_bundle_id": filters.AppBundleID})
	}

	rows, err := builder.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("store: fetch_recent: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return Page{}, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return Page{Items: items, HasMore: hasMore}, nil
}

// FetchByRowIDs implements fetch_by_row_ids (spec §4.2): rows are returned
// in the caller-provided order, not database order.
func (r *ReadStore) FetchByRowIDs(ctx context.Context, rowIDs []int64) ([]Item, error) {
	if len(rowIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(rowIDs))
	args := make([]any, len(rowIDs))
	for i, id := range rowIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT %s FROM items WHERE row_id IN (%s)`,
		strings.Join(itemColumns, ", "), strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: fetch_by_row_ids: %w", err)
	}
	defer rows.Close()

	byRowID := make(map[int64]Item, len(rowIDs))
	scanned, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	for _, item := range scanned {
		byRowID[item.RowID] = item
	}

	ordered := make([]Item, 0, len(rowIDs))
	for _, id := range rowIDs {
		if item, ok := byRowID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

// FetchByID returns the single item identified by its opaque id string, as
// used by copy_to_pasteboard and load_preview_data (spec §6.1), which
// address items by id rather than row_id.
func (r *ReadStore) FetchByID(ctx context.Context, id string) (Item, error) {
	query := fmt.Sprintf(`SELECT %s FROM items WHERE id = ?`, strings.Join(itemColumns, ", "))
	row := r.db.QueryRowContext(ctx, query, id)

	var item Item
	err := row.Scan(&item.RowID, &item.ID, &item.Type, &item.ContentHash, &item.PlainText,
		&item.AppBundleID, &item.CreatedAt, &item.LastUsedAt, &item.UseCount, &item.IsPinned,
		&item.SizeBytes, &item.StorageRef, &item.RawData)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("store: fetch_by_id: %w", err)
	}
	return item, nil
}

// Statistics implements statistics() (spec §4.2): an O(1) read of the
// maintained counters rather than a live aggregate query.
func (r *ReadStore) Statistics(ctx context.Context) (Statistics, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM meta WHERE key IN
		('item_count', 'unpinned_count', 'total_size_bytes', 'mutation_seq')`)
	if err != nil {
		return Statistics{}, fmt.Errorf("store: statistics: %w", err)
	}
	defer rows.Close()

	var stats Statistics
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			return Statistics{}, err
		}
		switch key {
		case "item_count":
			stats.ItemCount = value
		case "unpinned_count":
			stats.UnpinnedCount = value
		case "total_size_bytes":
			stats.TotalSizeBytes = value
		case "mutation_seq":
			stats.MutationSeq = value
		}
	}
	return stats, rows.Err()
}

// PlanCleanup implements the planning half of cleanup(plan) (spec §4.6):
// runs on the read connection and returns the row_ids to delete without
// mutating anything.
func (r *ReadStore) PlanCleanup(ctx context.Context, maxItems int, maxInlineSizeBytes, maxExternalSizeBytes int64) (CleanupPlan, error) {
	var plan CleanupPlan
	seen := make(map[int64]bool)

	addRows := func(rows *sql.Rows, err error) error {
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rowID int64
			if err := rows.Scan(&rowID); err != nil {
				return err
			}
			if !seen[rowID] {
				seen[rowID] = true
				plan.RowIDs = append(plan.RowIDs, rowID)
			}
		}
		return rows.Err()
	}

	var itemCount int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&itemCount); err != nil {
		return plan, fmt.Errorf("store: plan_cleanup count: %w", err)
	}
	if maxItems > 0 && itemCount > int64(maxItems) {
		excess := itemCount - int64(maxItems)
		rows, err := r.db.QueryContext(ctx,
			`SELECT row_id FROM items WHERE is_pinned = 0 ORDER BY last_used_at ASC LIMIT ?`, excess)
		if err := addRows(rows, err); err != nil {
			return plan, fmt.Errorf("store: plan_cleanup max_items: %w", err)
		}
	}

	if maxInlineSizeBytes > 0 {
		var inlineSize int64
		if err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM items WHERE storage_ref IS NULL OR storage_ref = ''`).Scan(&inlineSize); err != nil {
			return plan, fmt.Errorf("store: plan_cleanup inline size: %w", err)
		}
		if inlineSize > maxInlineSizeBytes {
			rows, err := r.db.QueryContext(ctx,
				`SELECT row_id FROM items WHERE is_pinned = 0 AND (storage_ref IS NULL OR storage_ref = '') ORDER BY last_used_at ASC`)
			if err := addRows(rows, err); err != nil {
				return plan, fmt.Errorf("store: plan_cleanup max_inline_size: %w", err)
			}
		}
	}

	if maxExternalSizeBytes > 0 {
		var externalSize int64
		if err := r.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size_bytes), 0) FROM items WHERE storage_ref IS NOT NULL AND storage_ref != ''`).Scan(&externalSize); err != nil {
			return plan, fmt.Errorf("store: plan_cleanup external size: %w", err)
		}
		if externalSize > maxExternalSizeBytes {
			rows, err := r.db.QueryContext(ctx,
				`SELECT row_id FROM items WHERE is_pinned = 0 AND storage_ref IS NOT NULL AND storage_ref != '' ORDER BY last_used_at ASC`)
			if err := addRows(rows, err); err != nil {
				return plan, fmt.Errorf("store: plan_cleanup max_external_size: %w", err)
			}
		}
	}

	return plan, nil
}

// StreamAll implements the "fetch_recent(all)" source the fuzzy index build
// uses (spec §4.5): every live item in row_id order, handed to fn one at a
// time so the caller never has to hold the whole corpus in memory at once.
func (r *ReadStore) StreamAll(ctx context.Context, fn func(Item) error) error {
	rows, err := sq.Select(itemColumns...).
		From("items").
		OrderBy("row_id ASC").
		RunWith(r.db).
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("store: stream_all: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.RowID, &item.ID, &item.Type, &item.ContentHash, &item.PlainText,
			&item.AppBundleID, &item.CreatedAt, &item.LastUsedAt, &item.UseCount, &item.IsPinned,
			&item.SizeBytes, &item.StorageRef, &item.RawData); err != nil {
			return fmt.Errorf("store: stream_all scan: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return rows.Err()
}

var itemColumns = []string{
	"row_id", "id", "type", "content_hash", "plain_text", "app_bundle_id",
	"created_at", "last_used_at", "use_count", "is_pinned", "size_bytes", "storage_ref", "raw_data",
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.RowID, &item.ID, &item.Type, &item.ContentHash, &item.PlainText,
			&item.AppBundleID, &item.CreatedAt, &item.LastUsedAt, &item.UseCount, &item.IsPinned,
			&item.SizeBytes, &item.StorageRef, &item.RawData); err != nil {
			return nil, fmt.Errorf("store: scan item row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
