package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/logging"
	"github.com/suehn/scopy/internal/metrics"
	"github.com/suehn/scopy/internal/store"
)

var log = logging.WithComponent("search")

// shortQueryThreshold is the query-length cutoff at or below which exact
// mode is served from the short-query cache instead of FTS; regex mode
// never touches FTS or the fuzzy index at any length (spec §4.5).
const shortQueryThreshold = 2

// Engine owns the read-only store connection, the in-memory fuzzy index,
// and the three caches. It is the "reader actor" of spec §4.8: one Engine
// serializes its own query execution, but long scans yield cooperatively
// at cancellation checkpoints via ctx.
type Engine struct {
	rs       *store.ReadStore
	settings *config.Settings

	buildMu sync.Mutex // serializes fuzzy index (re)builds
	fuzzy   *fuzzyIndex

	shortCache *shortQueryCache
	stmtCache  *preparedStatementCache
	pageCache  *pagingCache
}

// New builds a search Engine against an already-open read connection.
func New(rs *store.ReadStore, settings *config.Settings) (*Engine, error) {
	shortCache, err := newShortQueryCache(settings.ShortQueryCacheSize)
	if err != nil {
		return nil, err
	}
	stmtCache, err := newPreparedStatementCache()
	if err != nil {
		return nil, err
	}
	pageCache, err := newPagingCache(256)
	if err != nil {
		return nil, err
	}

	return &Engine{
		rs:         rs,
		settings:   settings,
		fuzzy:      newFuzzyIndex(),
		shortCache: shortCache,
		stmtCache:  stmtCache,
		pageCache:  pageCache,
	}, nil
}

// Close releases the engine's caches. The read connection itself is owned
// by the caller (the Service Facade), not the Engine.
func (e *Engine) Close() {
	e.shortCache.close()
	e.stmtCache.close()
	e.pageCache.close()
}

// FuzzyIndexStats adapts the Engine for metrics.Collector.
func (e *Engine) Size() int       { return e.fuzzy.Size() }
func (e *Engine) Tombstones() int { return e.fuzzy.Tombstones() }

// Explain reports which code path req would take without running it (spec
// §4.5 exact-mode UI note, supplemented per SPEC_FULL.md C5).
func (e *Engine) Explain(req Request) Explanation {
	qlen := len([]rune(req.Query))
	ex := Explanation{Mode: req.Mode}

	switch req.Mode {
	case ModeExact, ModeRegex:
		ex.IsShortQuery = qlen <= shortQueryThreshold || req.Mode == ModeRegex
		ex.WillUseFTS = req.Mode == ModeExact && qlen > shortQueryThreshold
		if ex.IsShortQuery {
			ex.Reason = fmt.Sprintf("query length %d: served from short-query cache (most recent %d items)", qlen, e.settings.ShortQueryCacheSize)
		} else {
			ex.Reason = "query length >= 3: FTS MATCH over the full corpus"
		}
	case ModeFuzzy, ModeFuzzyPlus:
		ex.WillUseFuzzyIdx = true
		candidates := e.fuzzy.candidateSlots(strings.ToLower(req.Query))
		ex.WillPrefilter = len(candidates) >= config.FuzzyPrefilterCandidateThreshold && isASCIIMultiWord(req.Query)
		if ex.WillPrefilter {
			ex.Reason = fmt.Sprintf("candidate set %d >= threshold: returning FTS prefilter, awaiting force_full refine", len(candidates))
		} else {
			ex.Reason = fmt.Sprintf("candidate set %d: scoring directly over the fuzzy index", len(candidates))
		}
	}
	return ex
}

// Search implements search() (spec §4.5): dispatches to the mode-specific
// evaluator, enforces the default 5s deadline, and never mutates caches on
// a cancelled/timed-out path.
func (e *Engine) Search(ctx context.Context, req Request) (ResultPage, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, config.DefaultRequestDeadline)
	defer cancel()

	start := time.Now()
	metrics.SearchRequestsTotal.WithLabelValues(string(req.Mode)).Inc()

	var page ResultPage
	var err error

	switch req.Mode {
	case ModeExact:
		page, err = e.searchExact(ctx, req)
	case ModeFuzzy:
		page, err = e.searchFuzzyMode(ctx, req, false)
	case ModeFuzzyPlus:
		page, err = e.searchFuzzyMode(ctx, req, true)
	case ModeRegex:
		page, err = e.searchRegex(ctx, req)
	default:
		return ResultPage{}, fmt.Errorf("search: unknown mode %q", req.Mode)
	}

	if ctx.Err() != nil {
		return ResultPage{}, fmt.Errorf("%w", ErrTimeout)
	}
	if err != nil {
		return ResultPage{}, err
	}

	page.SearchTimeMs = float64(time.Since(start)) / float64(time.Millisecond)
	metrics.SearchDuration.WithLabelValues(string(req.Mode)).Observe(time.Since(start).Seconds())
	return page, nil
}

// searchExact implements the exact mode of spec §4.5.
func (e *Engine) searchExact(ctx context.Context, req Request) (ResultPage, error) {
	qlen := len([]rune(req.Query))
	if qlen <= shortQueryThreshold {
		return e.searchShortQueryCache(ctx, req, nil)
	}

	matchExpr := ftsMatchExpr(req.Query)
	where := []string{"items_fts MATCH ?"}
	args := []any{matchExpr}

	if req.TypeFilter != "" {
		where = append(where, "i.type = ?")
		args = append(args, req.TypeFilter)
	}
	if req.AppFilter != "" {
		where = append(where, "i.app_bundle_id = ?")
		args = append(args, req.AppFilter)
	}

	shape := fmt.Sprintf(
		`SELECT i.row_id, i.id, i.type, i.plain_text, i.app_bundle_id, i.created_at,
		        i.last_used_at, i.use_count, i.is_pinned, i.size_bytes
		 FROM items_fts
		 JOIN items i ON i.row_id = items_fts.rowid
		 WHERE %s
		 ORDER BY i.is_pinned DESC, bm25(items_fts) ASC, i.last_used_at DESC, i.row_id ASC
		 LIMIT ? OFFSET ?`, strings.Join(where, " AND "))

	args = append(args, req.Limit+1, req.Offset)

	stmt, err := e.stmtCache.getOrPrepare(e.rs.DB(), shape)
	if err != nil {
		return ResultPage{}, fmt.Errorf("search: exact mode: %w", err)
	}

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return ResultPage{}, fmt.Errorf("search: exact mode query: %w", err)
	}
	defer rows.Close()

	var items []ItemSummary
	for rows.Next() {
		var s ItemSummary
		if err := rows.Scan(&s.RowID, &s.ID, &s.Type, &s.PlainText, &s.AppBundleID,
			&s.CreatedAt, &s.LastUsedAt, &s.UseCount, &s.IsPinned, &s.SizeBytes); err != nil {
			return ResultPage{}, fmt.Errorf("search: exact mode scan: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return ResultPage{}, err
	}

	hasMore := len(items) > req.Limit
	if hasMore {
		items = items[:req.Limit]
	}
	return ResultPage{Items: items, Total: -1, HasMore: hasMore}, nil
}

// searchShortQueryCache serves exact-mode short queries and all regex-mode
// queries from the most-recent-N mirror (spec §4.5), optionally filtering
// with pred (nil means no extra predicate, used by exact mode's
// length-filtered prefilter).
func (e *Engine) searchShortQueryCache(ctx context.Context, req Request, pred func(store.Item) (bool, error)) (ResultPage, error) {
	items, err := e.ensureShortQueryCache(ctx)
	if err != nil {
		return ResultPage{}, err
	}

	var summaries []ItemSummary
	for _, it := range items {
		if req.TypeFilter != "" && it.Type != req.TypeFilter {
			continue
		}
		if req.AppFilter != "" && it.AppBundleID != req.AppFilter {
			continue
		}
		if pred != nil {
			ok, err := pred(it)
			if err != nil {
				return ResultPage{}, err
			}
			if !ok {
				continue
			}
		}
		summaries = append(summaries, summaryFromItem(it))
	}

	end := req.Offset + req.Limit
	hasMore := false
	if end < len(summaries) {
		hasMore = true
	} else {
		end = len(summaries)
	}
	start := minInt(req.Offset, len(summaries))
	if start > end {
		start = end
	}
	return ResultPage{Items: summaries[start:end], Total: -1, HasMore: hasMore}, nil
}

func (e *Engine) ensureShortQueryCache(ctx context.Context) ([]store.Item, error) {
	if items, ok := e.shortCache.get(); ok {
		return items, nil
	}
	page, err := e.rs.FetchRecent(ctx, e.settings.ShortQueryCacheSize, 0, store.Filters{})
	if err != nil {
		return nil, fmt.Errorf("search: refreshing short-query cache: %w", err)
	}
	e.shortCache.set(page.Items)
	return page.Items, nil
}

// searchRegex implements regex mode: compiled once per request, run over
// the short-query cache only (spec §4.5).
func (e *Engine) searchRegex(ctx context.Context, req Request) (ResultPage, error) {
	re, err := compileRegex(req.Query)
	if err != nil {
		return ResultPage{}, err
	}

	return e.searchShortQueryCache(ctx, req, func(it store.Item) (bool, error) {
		return regexMatches(re, it.PlainText)
	})
}

// searchFuzzyMode implements both fuzzy and fuzzy_plus (spec §4.5): lazy
// index build, candidate generation via posting intersection, per-mode
// scoring, prefilter-then-refine for large candidate sets, and paging-
// cache-backed deep paging.
func (e *Engine) searchFuzzyMode(ctx context.Context, req Request, plus bool) (ResultPage, error) {
	if err := e.ensureFuzzyIndex(ctx); err != nil {
		return ResultPage{}, fmt.Errorf("search: building fuzzy index: %w", err)
	}

	lowerQuery := strings.ToLower(req.Query)

	if !req.ForceFull {
		candidates := e.fuzzy.candidateSlots(lowerQuery)
		if len(candidates) >= config.FuzzyPrefilterCandidateThreshold && isASCIIMultiWord(req.Query) {
			metrics.SearchCacheHitsTotal.WithLabelValues("fuzzy_prefilter").Inc()
			return e.searchExact(ctx, req)
		}
	}

	generation, err := e.currentGeneration(ctx)
	if err != nil {
		return ResultPage{}, err
	}

	key := pagingKey{
		mode:       req.Mode,
		query:      lowerQuery,
		appFilter:  req.AppFilter,
		typeFilter: req.TypeFilter,
		forceFull:  req.ForceFull,
		generation: generation,
	}

	var rowIDs []int64
	var total int
	if entry, ok := e.pageCache.get(key); ok {
		metrics.SearchCacheHitsTotal.WithLabelValues("paging").Inc()
		rowIDs, total = entry.rowIDs, entry.total
	} else {
		rowIDs, total, err = e.computeFuzzyOrder(ctx, req, plus, lowerQuery)
		if err != nil {
			return ResultPage{}, err
		}
		e.pageCache.set(key, pagingEntry{rowIDs: rowIDs, total: total})
	}

	end := minInt(req.Offset+req.Limit, len(rowIDs))
	start := minInt(req.Offset, len(rowIDs))
	if start > end {
		start = end
	}
	pageRowIDs := rowIDs[start:end]

	items, err := e.rs.FetchByRowIDs(ctx, pageRowIDs)
	if err != nil {
		return ResultPage{}, fmt.Errorf("search: hydrating fuzzy page: %w", err)
	}
	summaries := make([]ItemSummary, len(items))
	for i, it := range items {
		summaries[i] = summaryFromItem(it)
	}

	return ResultPage{
		Items:   summaries,
		Total:   total,
		HasMore: end < len(rowIDs),
	}, nil
}

func (e *Engine) computeFuzzyOrder(ctx context.Context, req Request, plus bool, lowerQuery string) ([]int64, int, error) {
	candidates := e.fuzzy.candidateSlots(lowerQuery)

	scorer := func(text string) (float64, bool) { return subsequenceScore(lowerQuery, text) }
	if plus {
		scorer = func(text string) (float64, bool) { return fuzzyPlusScore(lowerQuery, text) }
	}

	matches, err := e.fuzzy.scoreCandidates(ctx, candidates, req.TypeFilter, req.AppFilter, scorer)
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.isPinned != b.isPinned {
			return a.isPinned
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.lastUsedAt != b.lastUsedAt {
			return a.lastUsedAt > b.lastUsedAt
		}
		return a.rowID < b.rowID
	})

	rowIDs := make([]int64, len(matches))
	for i, m := range matches {
		rowIDs[i] = m.rowID
	}
	return rowIDs, len(rowIDs), nil
}

func (e *Engine) currentGeneration(ctx context.Context) (int64, error) {
	stats, err := e.rs.Statistics(ctx)
	if err != nil {
		return 0, fmt.Errorf("search: reading mutation_seq: %w", err)
	}
	return stats.MutationSeq, nil
}

// ensureFuzzyIndex builds the index on first use and rebuilds it whenever
// the change-token check (current mutation_seq vs. the generation baked
// into the index) detects drift, or the tombstone ratio crosses the
// reclamation threshold (spec §4.5).
func (e *Engine) ensureFuzzyIndex(ctx context.Context) error {
	generation, err := e.currentGeneration(ctx)
	if err != nil {
		return err
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if e.fuzzy.built && e.fuzzy.generation == generation && !e.fuzzy.isStale(config.FuzzyTombstoneReclaimRatio) {
		return nil
	}

	deadline := config.DefaultRequestDeadline
	if !e.fuzzy.built {
		deadline = config.FirstBuildDeadline
	}
	buildCtx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	log.Info().Int64("generation", generation).Msg("rebuilding fuzzy index")
	if err := e.fuzzy.build(buildCtx, e.rs, generation); err != nil {
		return err
	}
	metrics.FuzzyIndexSize.Set(float64(e.fuzzy.Size()))
	metrics.FuzzyIndexTombstones.Set(float64(e.fuzzy.Tombstones()))
	return nil
}

// OnInsert, OnDelete, OnPin and OnClearAll keep the fuzzy index and caches
// consistent with writer-side mutations (spec §4.5's incremental-update
// rules), called by the Service Facade as it observes outbox events.
func (e *Engine) OnInsert(item store.Item) {
	e.fuzzy.upsert(item)
	e.shortCache.invalidate()
}

func (e *Engine) OnDelete(rowID int64) {
	e.fuzzy.tombstone(rowID)
	e.shortCache.invalidate()
}

func (e *Engine) OnPin(rowID int64, isPinned bool) {
	e.fuzzy.pin(rowID, isPinned)
	e.shortCache.invalidate()
}

// OnClearAll implements the "clearAll: rebuild from scratch" rule; the
// next fuzzy query lazily rebuilds from the (now near-empty) store.
func (e *Engine) OnClearAll() {
	e.fuzzy.clear()
	e.shortCache.invalidate()
}

// InvalidateCaches is called by the cleanup scheduler after a successful
// run (spec §4.6): it clears the short-query cache and marks the fuzzy
// index stale, forcing the next query to rebuild it. The paging cache is
// not cleared here; its keys carry the mutation_seq generation, which the
// cleanup's own commit advances, so entries from before the run are no
// longer looked up.
func (e *Engine) InvalidateCaches() {
	e.shortCache.invalidate()
	e.buildMu.Lock()
	e.fuzzy.generation = -1 // never matches a real mutation_seq, forces rebuild
	e.buildMu.Unlock()
}

func fuzzyIndexPaths(root string) (bin, sum string) {
	return filepath.Join(root, "fuzzy_index.bin"), filepath.Join(root, "fuzzy_index.sha256")
}

// LoadIndexSnapshot attempts a cold-start load of the fuzzy index from disk
// (spec §6.2/§4.5): validates the sidecar checksum, then checks the
// snapshot's generation against the live store's current mutation_seq
// before trusting it. A missing, corrupt, or stale snapshot is never an
// error here — it just means ensureFuzzyIndex's normal lazy-build path
// runs on the first fuzzy query instead of skipping it.
func (e *Engine) LoadIndexSnapshot(ctx context.Context, root string) {
	bin, sum := fuzzyIndexPaths(root)

	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	generation, err := e.fuzzy.loadSnapshot(bin, sum)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("discarding fuzzy index snapshot")
		}
		return
	}

	current, err := e.currentGeneration(ctx)
	if err != nil || current != generation {
		e.fuzzy.generation = -1 // stale: force a rebuild on next query
		return
	}
	metrics.FuzzyIndexSize.Set(float64(e.fuzzy.Size()))
	metrics.FuzzyIndexTombstones.Set(float64(e.fuzzy.Tombstones()))
}

// SaveIndexSnapshot persists the current fuzzy index to disk so the next
// process start can skip a full rebuild if the corpus hasn't changed.
// A no-op if the index was never built this process.
func (e *Engine) SaveIndexSnapshot(root string) error {
	e.buildMu.Lock()
	defer e.buildMu.Unlock()

	if !e.fuzzy.built {
		return nil
	}
	bin, sum := fuzzyIndexPaths(root)
	return e.fuzzy.saveSnapshot(bin, sum)
}

func isASCIIMultiWord(query string) bool {
	fields := strings.Fields(query)
	if len(fields) < 2 {
		return false
	}
	return isASCII(query)
}
