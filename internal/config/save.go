package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save writes s to settings.yml under appDataRoot using an atomic
// write-temp-then-rename, so a crash or concurrent reader never observes a
// half-written file. update_settings (spec §6.1) calls this after merging
// the caller's delta onto the currently loaded Settings.
func Save(appDataRoot string, s *Settings) error {
	if err := Validate(s); err != nil {
		return fmt.Errorf("config: refusing to save invalid settings: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}

	if err := os.MkdirAll(appDataRoot, 0o755); err != nil {
		return fmt.Errorf("config: creating app-data root: %w", err)
	}

	settingsPath := filepath.Join(appDataRoot, "settings.yml")
	tmpPath := settingsPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("config: writing settings temp file: %w", err)
	}
	if err := os.Rename(tmpPath, settingsPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("config: renaming settings file: %w", err)
	}
	return nil
}
