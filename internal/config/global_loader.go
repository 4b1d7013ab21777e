package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadGlobalConfig loads machine-wide configuration from ~/.scopy/config.yml.
// Returns default values if the file doesn't exist (not an error).
// Environment variables override file values (SCOPY_* prefix).
func LoadGlobalConfig() (*GlobalConfig, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	root := filepath.Join(home, ".scopy")

	// Look for ~/.scopy/config.yml (not the per-settings file under the
	// app-data root itself).
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("SCOPY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindGlobalEnvVars(v)
	setGlobalDefaults(v, root)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config file: %w", err)
		}
	}

	cfg := &GlobalConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal global config: %w", err)
	}

	return cfg, nil
}

func bindGlobalEnvVars(v *viper.Viper) {
	v.BindEnv("daemon.lock_path")
	v.BindEnv("daemon.startup_timeout")
	v.BindEnv("daemon.socket_path")
	v.BindEnv("cache.base_dir")
}

func setGlobalDefaults(v *viper.Viper, root string) {
	v.SetDefault("daemon.lock_path", filepath.Join(root, "scopy.lock"))
	v.SetDefault("daemon.startup_timeout", 10)
	v.SetDefault("daemon.socket_path", filepath.Join(root, "scopyd.sock"))
	v.SetDefault("cache.base_dir", root)
}
