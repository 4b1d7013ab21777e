package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads Settings from the app-data root.
type Loader interface {
	// Load loads Settings with priority: defaults < settings file < env vars.
	Load() (*Settings, error)
}

type loader struct {
	appDataRoot string
}

// NewLoader creates a Settings loader rooted at the app-data directory
// (spec §6.2's <root>), where settings.yml lives alongside clipboard.db.
func NewLoader(appDataRoot string) Loader {
	return &loader{appDataRoot: appDataRoot}
}

// Load loads Settings with the following priority (highest to lowest):
//  1. Environment variables (SCOPY_*)
//  2. settings.yml under the app-data root
//  3. Default values
func (l *loader) Load() (*Settings, error) {
	v := viper.New()

	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	v.AddConfigPath(l.appDataRoot)

	v.SetEnvPrefix("SCOPY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindSettingsEnvVars(v)
	setSettingsDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read settings file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := Validate(settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

func bindSettingsEnvVars(v *viper.Viper) {
	v.BindEnv("max_items")
	v.BindEnv("max_inline_size_bytes")
	v.BindEnv("max_external_size_bytes")
	v.BindEnv("save_images")
	v.BindEnv("save_files")
	v.BindEnv("default_search_mode")
	v.BindEnv("short_query_limit")
	v.BindEnv("short_query_cache_size")
	v.BindEnv("external_storage_threshold_bytes")
	v.BindEnv("ingest_spool_threshold_bytes")
	v.BindEnv("indexable_summary_policy")
	v.BindEnv("indexable_summary_budget_bytes")
	v.BindEnv("ingest_worker_concurrency")
	v.BindEnv("cleanup_worker_concurrency")
}

func setSettingsDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("max_items", d.MaxItems)
	v.SetDefault("max_inline_size_bytes", d.MaxInlineSizeBytes)
	v.SetDefault("max_external_size_bytes", d.MaxExternalSizeBytes)
	v.SetDefault("save_images", d.SaveImages)
	v.SetDefault("save_files", d.SaveFiles)
	v.SetDefault("default_search_mode", string(d.DefaultSearchMode))
	v.SetDefault("short_query_limit", d.ShortQueryLimit)
	v.SetDefault("short_query_cache_size", d.ShortQueryCacheSize)
	v.SetDefault("external_storage_threshold_bytes", d.ExternalStorageThresholdBytes)
	v.SetDefault("ingest_spool_threshold_bytes", d.IngestSpoolThresholdBytes)
	v.SetDefault("indexable_summary_policy", string(d.IndexableSummaryPolicy))
	v.SetDefault("indexable_summary_budget_bytes", d.IndexableSummaryBudgetBytes)
	v.SetDefault("ingest_worker_concurrency", d.IngestWorkerConcurrency)
	v.SetDefault("cleanup_worker_concurrency", d.CleanupWorkerConcurrency)
	v.SetDefault("file_type_globs", d.FileTypeGlobs)
}

// LoadSettingsFromDir is a convenience function mirroring the teacher's
// LoadConfigFromDir.
func LoadSettingsFromDir(appDataRoot string) (*Settings, error) {
	return NewLoader(appDataRoot).Load()
}
