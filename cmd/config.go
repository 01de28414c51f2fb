package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/xo/dburl"

	"db-merge/internal/dialect"
	"db-merge/internal/engine"
	"db-merge/internal/merge"
)

type DBConfig struct {
	Name    string `mapstructure:"name"`
	Dialect string `mapstructure:"dialect"`
	URL     string `mapstructure:"url"`
	Active  bool   `mapstructure:"active"`
}

type BootstrapConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

type Settings struct {
	DefaultSchema string          `mapstructure:"default_schema"`
	ModelFile     string          `mapstructure:"model_file"`
	AutoCreate    bool            `mapstructure:"auto_create"`
	SchemaVersion int             `mapstructure:"schema_version"`
	VersionSchema string          `mapstructure:"version_schema"`
	Bootstrap     BootstrapConfig `mapstructure:"bootstrap"`
}

func init() {
	viper.SetDefault("settings.model_file", "models.yaml")
	viper.SetDefault("settings.version_schema", merge.DefaultVersionSchema)
	viper.SetDefault("settings.bootstrap.max_attempts", engine.DefaultRetry.MaxAttempts)
	viper.SetDefault("settings.bootstrap.interval", engine.DefaultRetry.Interval)
}

// GetActiveDBConfig returns the currently active database configuration.
func GetActiveDBConfig() (*DBConfig, error) {
	var configs []DBConfig

	if err := viper.UnmarshalKey("databases", &configs); err != nil {
		return nil, fmt.Errorf("failed to parse databases config: %w", err)
	}

	var activeConfig *DBConfig
	count := 0

	for i := range configs {
		if configs[i].Active {
			activeConfig = &configs[i]
			count++
		}
	}

	if count == 0 {
		return nil, fmt.Errorf("no active database found in config (set active: true)")
	}
	if count > 1 {
		return nil, fmt.Errorf("multiple active databases found (only one can be active)")
	}

	return activeConfig, nil
}

// ResolveDBConfig applies the --url and --dialect flags on top of the active database.
// A missing dialect is derived from the url scheme.
func ResolveDBConfig() (*DBConfig, error) {
	cfg, err := GetActiveDBConfig()
	if err != nil {
		if dbURL == "" {
			return nil, err
		}
		cfg = &DBConfig{Name: "command line", Active: true}
	}
	if dbURL != "" {
		cfg.URL = dbURL
	}
	if dialectName != "" {
		cfg.Dialect = dialectName
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("database %q has no url", cfg.Name)
	}

	if cfg.Dialect == "" {
		u, err := dburl.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database url: %w", err)
		}
		cfg.Dialect = u.Driver
	}
	if !dialect.Known(cfg.Dialect) {
		return nil, fmt.Errorf("unsupported dialect %q (use sqlserver, mysql, postgres or oracle)", cfg.Dialect)
	}
	return cfg, nil
}

// GetSettings reads the settings section with defaults applied.
func GetSettings() (*Settings, error) {
	var s Settings
	if err := viper.UnmarshalKey("settings", &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	return &s, nil
}
