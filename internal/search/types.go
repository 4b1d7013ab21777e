// Package search implements the multi-mode query engine (exact, fuzzy,
// fuzzy_plus, regex) with paging, cancellation and progressive refine. It
// owns a dedicated read-only store connection and the in-memory fuzzy
// index, following the same reader/caches split the teacher's graph
// searcher uses for its file-context cache.
package search

import (
	"errors"

	"github.com/suehn/scopy/internal/config"
	"github.com/suehn/scopy/internal/store"
)

// Mode is a query-evaluation strategy. Defined as an alias of config.SearchMode
// so callers never have to convert between the settings type and the search
// request type.
type Mode = config.SearchMode

const (
	ModeExact     = config.ModeExact
	ModeFuzzy     = config.ModeFuzzy
	ModeFuzzyPlus = config.ModeFuzzyPlus
	ModeRegex     = config.ModeRegex
)

// Sentinel errors matching the taxonomy of spec §6.3.
var (
	ErrRegexCompile = errors.New("search: invalid regex pattern")
	ErrTimeout      = errors.New("search: request exceeded its deadline")
)

// Request is one search() call.
type Request struct {
	Query      string
	Mode       Mode
	AppFilter  string
	TypeFilter store.ItemType
	Limit      int
	Offset     int
	ForceFull  bool
}

// ItemSummary is the subset of an Item the search result page carries; the
// facade hydrates full item bodies (raw_data/storage_ref) separately via
// fetch_by_row_ids when the UI needs them.
type ItemSummary struct {
	RowID       int64
	ID          string
	Type        store.ItemType
	PlainText   string
	AppBundleID string
	CreatedAt   float64
	LastUsedAt  float64
	UseCount    int
	IsPinned    bool
	SizeBytes   int64
}

// ResultPage is the result of search().
type ResultPage struct {
	Items        []ItemSummary
	Total        int // -1 means unknown: this page is a prefilter
	HasMore      bool
	SearchTimeMs float64
}

// Explanation is the debug output of Explain(): which code path a request
// would take without actually running it, so the out-of-scope UI can
// surface "short query: searching recent N" without re-deriving the
// heuristic itself.
type Explanation struct {
	Mode            Mode
	IsShortQuery    bool   // exact/regex: query len <= 2, served from short-query cache
	WillUseFTS      bool   // exact mode, query len >= 3
	WillUseFuzzyIdx bool   // fuzzy/fuzzy_plus
	WillPrefilter   bool   // fuzzy candidate set large enough to return an FTS prefilter first
	Reason          string
}

func summaryFromItem(it store.Item) ItemSummary {
	return ItemSummary{
		RowID:       it.RowID,
		ID:          it.ID,
		Type:        it.Type,
		PlainText:   it.PlainText,
		AppBundleID: it.AppBundleID,
		CreatedAt:   it.CreatedAt,
		LastUsedAt:  it.LastUsedAt,
		UseCount:    it.UseCount,
		IsPinned:    it.IsPinned,
		SizeBytes:   it.SizeBytes,
	}
}
