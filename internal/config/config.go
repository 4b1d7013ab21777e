// Package config loads Scopy's project Settings (spec §6.4) and the
// machine-wide GlobalConfig that locates the app-data root.
//
// Two distinct scopes, same layering the rest of the pack uses for config:
//
//  1. GlobalConfig (~/.scopy/config.yml) — app-data root, lock path, daemon
//     timeouts. Loaded via LoadGlobalConfig().
//  2. Settings (<app-data-root>/settings.yml) — the user-facing retention
//     and search knobs of spec §6.4. Loaded via Load()/NewLoader(...).Load().
//
// Priority (highest to lowest): environment variables (SCOPY_*) > config
// file > built-in defaults.
package config

import "time"

// SearchMode mirrors the four modes of spec §4.5.
type SearchMode string

const (
	ModeExact     SearchMode = "exact"
	ModeFuzzy     SearchMode = "fuzzy"
	ModeFuzzyPlus SearchMode = "fuzzy_plus"
	ModeRegex     SearchMode = "regex"
)

// IndexableSummaryPolicy resolves the Open Question of spec §4.4.8 / §9:
// what happens to plain_text once it exceeds the indexable-text budget.
type IndexableSummaryPolicy string

const (
	// SummaryTruncate stores only a head+tail summary inline and moves the
	// full text to external storage; search over such an item only matches
	// the summary. This is the policy this implementation chooses.
	SummaryTruncate IndexableSummaryPolicy = "truncate"
	// SummaryFull keeps the full text inline and indexed regardless of
	// size. Admitted by the spec but not the default.
	SummaryFull IndexableSummaryPolicy = "full"
)

// Settings is the record the Service Facade consumes and writes through to
// the external Settings Store (spec §6.4). Field names and defaults match
// the spec; IndexableSummaryPolicy and the worker-concurrency/glob fields
// make the Open Question decisions and the domain-stack wiring explicit.
type Settings struct {
	MaxItems                      int                    `yaml:"max_items" mapstructure:"max_items"`
	MaxInlineSizeBytes            int64                  `yaml:"max_inline_size_bytes" mapstructure:"max_inline_size_bytes"`
	MaxExternalSizeBytes          int64                  `yaml:"max_external_size_bytes" mapstructure:"max_external_size_bytes"`
	SaveImages                    bool                   `yaml:"save_images" mapstructure:"save_images"`
	SaveFiles                     bool                   `yaml:"save_files" mapstructure:"save_files"`
	DefaultSearchMode             SearchMode             `yaml:"default_search_mode" mapstructure:"default_search_mode"`
	ShortQueryLimit               int                    `yaml:"short_query_limit" mapstructure:"short_query_limit"`
	ShortQueryCacheSize           int                    `yaml:"short_query_cache_size" mapstructure:"short_query_cache_size"`
	ExternalStorageThresholdBytes int64                  `yaml:"external_storage_threshold_bytes" mapstructure:"external_storage_threshold_bytes"`
	IngestSpoolThresholdBytes     int64                  `yaml:"ingest_spool_threshold_bytes" mapstructure:"ingest_spool_threshold_bytes"`
	IndexableSummaryPolicy        IndexableSummaryPolicy `yaml:"indexable_summary_policy" mapstructure:"indexable_summary_policy"`
	IndexableSummaryBudgetBytes   int64                  `yaml:"indexable_summary_budget_bytes" mapstructure:"indexable_summary_budget_bytes"`
	IngestWorkerConcurrency       int                    `yaml:"ingest_worker_concurrency" mapstructure:"ingest_worker_concurrency"`
	CleanupWorkerConcurrency      int                    `yaml:"cleanup_worker_concurrency" mapstructure:"cleanup_worker_concurrency"`
	FileTypeGlobs                 []string               `yaml:"file_type_globs" mapstructure:"file_type_globs"`
}

// Default returns Settings populated with the spec's documented defaults.
func Default() *Settings {
	return &Settings{
		MaxItems:                      10_000,
		MaxInlineSizeBytes:            256 * 1024 * 1024,
		MaxExternalSizeBytes:          2 * 1024 * 1024 * 1024,
		SaveImages:                    true,
		SaveFiles:                     true,
		DefaultSearchMode:             ModeFuzzyPlus,
		ShortQueryLimit:               2,
		ShortQueryCacheSize:           2000,
		ExternalStorageThresholdBytes: 100 * 1024,
		IngestSpoolThresholdBytes:     100 * 1024,
		IndexableSummaryPolicy:        SummaryTruncate,
		IndexableSummaryBudgetBytes:   1024 * 1024,
		IngestWorkerConcurrency:       4,
		CleanupWorkerConcurrency:      8,
		FileTypeGlobs: []string{
			"*.txt", "*.md", "*.pdf", "*.doc", "*.docx",
			"*.png", "*.jpg", "*.jpeg", "*.gif", "*.zip",
		},
	}
}

// ShortQueryCacheTTL is fixed by the spec (~30s) rather than configurable.
const ShortQueryCacheTTL = 30 * time.Second

// PreparedStatementCacheSize is fixed by the spec (bound 32).
const PreparedStatementCacheSize = 32

// FuzzyTombstoneReclaimRatio is the spec's stale-index threshold (§4.5).
const FuzzyTombstoneReclaimRatio = 0.2

// Request deadlines from spec §4.5.
const (
	DefaultRequestDeadline = 5 * time.Second
	FirstBuildDeadline     = 30 * time.Second
)

// StatsChangedInterval is how often the Service Facade republishes a
// StatsChanged event (spec §4.7); stats have no owning write transaction to
// hang a post-commit publish off of, unlike the item-mutation events.
const StatsChangedInterval = 5 * time.Second

// FuzzyPrefilterCandidateThreshold is the spec's "≥ 6000 slots" heuristic
// for returning an FTS-based prefilter instead of a full fuzzy scan.
const FuzzyPrefilterCandidateThreshold = 6000
