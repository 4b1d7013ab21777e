package search

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/store"
)

// shortQueryCache mirrors the most-recent N items (spec §4.5) used to serve
// 1-2 character queries and all regex-mode queries without touching FTS or
// the fuzzy index. It is a single cached slice behind a TTL, following the
// same otter.Builder pattern the teacher's graph searcher uses for its
// file-context cache, just keyed by one constant key instead of per-path.
type shortQueryCache struct {
	cache otter.Cache[string, []store.Item]
}

const shortQueryCacheKey = "recent"

func newShortQueryCache(capacity int) (*shortQueryCache, error) {
	cache, err := otter.MustBuilder[string, []store.Item](capacity).
		WithTTL(config.ShortQueryCacheTTL).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("search: building short-query cache: %w", err)
	}
	return &shortQueryCache{cache: cache}, nil
}

func (c *shortQueryCache) get() ([]store.Item, bool) {
	return c.cache.Get(shortQueryCacheKey)
}

func (c *shortQueryCache) set(items []store.Item) {
	c.cache.Set(shortQueryCacheKey, items)
}

func (c *shortQueryCache) invalidate() {
	c.cache.Delete(shortQueryCacheKey)
}

func (c *shortQueryCache) close() {
	c.cache.Close()
}

// preparedStatementCache is an LRU over compiled SQL shapes, bound 32
// (spec §4.5), closing evicted statements so the connection's handle table
// never grows unbounded.
type preparedStatementCache struct {
	cache otter.Cache[string, *sql.Stmt]
}

func newPreparedStatementCache() (*preparedStatementCache, error) {
	cache, err := otter.MustBuilder[string, *sql.Stmt](config.PreparedStatementCacheSize).
		DeletionListener(func(key string, stmt *sql.Stmt, cause otter.DeletionCause) {
			_ = stmt.Close()
		}).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("search: building prepared-statement cache: %w", err)
	}
	return &preparedStatementCache{cache: cache}, nil
}

// getOrPrepare returns a cached *sql.Stmt for shape, preparing and caching
// it against db on a miss.
func (c *preparedStatementCache) getOrPrepare(db *sql.DB, shape string) (*sql.Stmt, error) {
	if stmt, ok := c.cache.Get(shape); ok {
		return stmt, nil
	}
	stmt, err := db.Prepare(shape)
	if err != nil {
		return nil, err
	}
	c.cache.Set(shape, stmt)
	return stmt, nil
}

func (c *preparedStatementCache) close() {
	c.cache.Range(func(_ string, stmt *sql.Stmt) bool {
		_ = stmt.Close()
		return true
	})
	c.cache.Close()
}

// pagingKey identifies one fully-materialized ordered result list (spec
// §4.5): mode + normalized query + filters + force_full + the mutation_seq
// generation it was computed against. A mismatched generation means the
// cached page is stale and must be recomputed, not served.
type pagingKey struct {
	mode       Mode
	query      string
	appFilter  string
	typeFilter store.ItemType
	forceFull  bool
	generation int64
}

func (k pagingKey) string() string {
	return fmt.Sprintf("%s|%s|%s|%s|%v|%d", k.mode, k.query, k.appFilter, k.typeFilter, k.forceFull, k.generation)
}

// pagingEntry is the full ordered match list cached for deep paging.
type pagingEntry struct {
	rowIDs []int64
	total  int
}

// pagingCache holds the fully ordered match list for a query once deep
// paging has forced a full computation, so subsequent pages slice from
// cache instead of recomputing.
type pagingCache struct {
	cache otter.Cache[string, pagingEntry]
}

func newPagingCache(capacity int) (*pagingCache, error) {
	cache, err := otter.MustBuilder[string, pagingEntry](capacity).
		WithTTL(5 * time.Minute).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("search: building paging cache: %w", err)
	}
	return &pagingCache{cache: cache}, nil
}

func (c *pagingCache) get(key pagingKey) (pagingEntry, bool) {
	return c.cache.Get(key.string())
}

func (c *pagingCache) set(key pagingKey, entry pagingEntry) {
	c.cache.Set(key.string(), entry)
}

func (c *pagingCache) close() {
	c.cache.Close()
}
