package store

import (
	"context"
	"fmt"
)

// ItemCountsByKind satisfies metrics.StatsProvider: a live count of items
// grouped by type, used to republish per-kind gauges on the collector's
// ticker rather than on every mutation.
func (r *ReadStore) ItemCountsByKind() (map[string]int64, error) {
	rows, err := r.db.Query(`SELECT type, COUNT(*) FROM items GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("store: item_counts_by_kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("store: scan item_counts_by_kind row: %w", err)
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// StoreSizeBytes satisfies metrics.StatsProvider: the combined size of
// inline and externally stored payloads, mirroring total_size_bytes but
// read live rather than off the maintained counter, since the collector
// runs off the read connection independent of Store's write path.
func (r *ReadStore) StoreSizeBytes() (int64, error) {
	var total int64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM items`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: store_size_bytes: %w", err)
	}
	return total, nil
}

// InlineExternalBytes splits the live corpus's size_bytes between inline
// (stored in raw_data) and external (content/ blob) items, for get_stats
// (spec §6.1), which reports the two separately rather than as one total.
func (r *ReadStore) InlineExternalBytes(ctx context.Context) (inlineBytes, externalBytes int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE WHEN storage_ref IS NULL OR storage_ref = '' THEN size_bytes ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN storage_ref IS NOT NULL AND storage_ref != '' THEN size_bytes ELSE 0 END), 0)
		 FROM items`).Scan(&inlineBytes, &externalBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("store: inline_external_bytes: %w", err)
	}
	return inlineBytes, externalBytes, nil
}
