package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSearchMode indicates an unsupported default_search_mode.
	ErrInvalidSearchMode = errors.New("invalid default search mode")

	// ErrInvalidCap indicates a retention cap outside its valid range.
	ErrInvalidCap = errors.New("invalid retention cap")

	// ErrInvalidThreshold indicates a negative size threshold.
	ErrInvalidThreshold = errors.New("invalid size threshold")

	// ErrInvalidConcurrency indicates a non-positive worker pool size.
	ErrInvalidConcurrency = errors.New("invalid worker concurrency")

	// ErrInvalidSummaryPolicy indicates an unrecognized IndexableSummaryPolicy.
	ErrInvalidSummaryPolicy = errors.New("invalid indexable summary policy")
)

// Validate checks that Settings is internally consistent before it is
// accepted by update_settings (spec §6.1) or loaded at startup.
func Validate(s *Settings) error {
	var errs []error

	if s.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_items must be positive, got %d", ErrInvalidCap, s.MaxItems))
	}
	if s.MaxInlineSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: max_inline_size_bytes cannot be negative, got %d", ErrInvalidCap, s.MaxInlineSizeBytes))
	}
	if s.MaxExternalSizeBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: max_external_size_bytes cannot be negative, got %d", ErrInvalidCap, s.MaxExternalSizeBytes))
	}

	switch s.DefaultSearchMode {
	case ModeExact, ModeFuzzy, ModeFuzzyPlus, ModeRegex:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidSearchMode, s.DefaultSearchMode))
	}

	if s.ShortQueryLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: short_query_limit cannot be negative, got %d", ErrInvalidCap, s.ShortQueryLimit))
	}
	if s.ShortQueryCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: short_query_cache_size must be positive, got %d", ErrInvalidCap, s.ShortQueryCacheSize))
	}

	if s.ExternalStorageThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: external_storage_threshold_bytes cannot be negative", ErrInvalidThreshold))
	}
	if s.IngestSpoolThresholdBytes < 0 {
		errs = append(errs, fmt.Errorf("%w: ingest_spool_threshold_bytes cannot be negative", ErrInvalidThreshold))
	}

	switch s.IndexableSummaryPolicy {
	case SummaryTruncate, SummaryFull:
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidSummaryPolicy, s.IndexableSummaryPolicy))
	}
	if s.IndexableSummaryBudgetBytes <= 0 {
		errs = append(errs, fmt.Errorf("%w: indexable_summary_budget_bytes must be positive", ErrInvalidCap))
	}

	if s.IngestWorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: ingest_worker_concurrency must be positive, got %d", ErrInvalidConcurrency, s.IngestWorkerConcurrency))
	}
	if s.CleanupWorkerConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("%w: cleanup_worker_concurrency must be positive, got %d", ErrInvalidConcurrency, s.CleanupWorkerConcurrency))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
