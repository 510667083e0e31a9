package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/aevon-lab/adselect/internal/core/catalog"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ADSELECT_"

// Config represents the top-level application config plus resolved values derived from it.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Stats     StatsConfig     `koanf:"stats"`
	Selection SelectionConfig `koanf:"selection"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Notify    NotifyConfig    `koanf:"notify"`
	Log       LogConfig       `koanf:"log"`

	// Resolved is populated by Load after parsing durations and seed files.
	Resolved Resolved `koanf:"-"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

// StatsConfig controls the rolling horizon and the rebuild schedule.
type StatsConfig struct {
	Horizon           string `koanf:"horizon"`          // e.g. "30d", "72h"
	RebuildInterval   string `koanf:"rebuild_interval"` // parsed on startup
	RebuildTimeout    string `koanf:"rebuild_timeout"`
	RebuildRetries    int    `koanf:"rebuild_retries"`
	RebuildBackoff    string `koanf:"rebuild_backoff"`
	DeltaThreshold    int64  `koanf:"delta_threshold"` // 0 disables threshold rebuilds
	WorkerCount       int    `koanf:"worker_count"`
	BatchSize         int    `koanf:"batch_size"`
	BestKeywordsLimit int    `koanf:"best_keywords_limit"`
}

type SelectionConfig struct {
	ColdStartScore float64 `koanf:"cold_start_score"`
	MaxResults     int     `koanf:"max_results"` // 0 = unbounded
}

type CatalogConfig struct {
	SeedDir string `koanf:"seed_dir"`
}

// NotifyConfig configures the optional Redis impression subscriber.
type NotifyConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Channel  string `koanf:"channel"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug | info | warn | error
	Format string `koanf:"format"` // text | json
}

// Resolved holds values parsed out of the raw config strings.
type Resolved struct {
	Horizon         stats.Horizon
	RebuildInterval time.Duration
	RebuildTimeout  time.Duration
	RebuildBackoff  time.Duration
	Seeds           []catalog.SeedCampaign
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	switch c.Database.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required for database.type postgres")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q (must be postgres or memory)", c.Database.Type)
	}

	if _, err := stats.ParseHorizon(c.Stats.Horizon); err != nil {
		return fmt.Errorf("invalid stats.horizon %q: %w", c.Stats.Horizon, err)
	}
	for name, raw := range map[string]string{
		"stats.rebuild_interval": c.Stats.RebuildInterval,
		"stats.rebuild_timeout":  c.Stats.RebuildTimeout,
		"stats.rebuild_backoff":  c.Stats.RebuildBackoff,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.Stats.RebuildRetries < 0 {
		return fmt.Errorf("stats.rebuild_retries must be >= 0")
	}
	if c.Stats.DeltaThreshold < 0 {
		return fmt.Errorf("stats.delta_threshold must be >= 0")
	}
	if c.Stats.WorkerCount <= 0 {
		return fmt.Errorf("stats.worker_count must be > 0")
	}
	if c.Stats.BatchSize <= 0 {
		return fmt.Errorf("stats.batch_size must be > 0")
	}
	if c.Stats.BestKeywordsLimit <= 0 {
		return fmt.Errorf("stats.best_keywords_limit must be > 0")
	}

	if c.Selection.ColdStartScore <= 0 {
		return fmt.Errorf("selection.cold_start_score must be > 0, got %v", c.Selection.ColdStartScore)
	}
	if c.Selection.MaxResults < 0 {
		return fmt.Errorf("selection.max_results must be >= 0")
	}

	if c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.Addr) == "" {
			return fmt.Errorf("notify.addr is required when notify is enabled")
		}
		if strings.TrimSpace(c.Notify.Channel) == "" {
			return fmt.Errorf("notify.channel is required when notify is enabled")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("invalid log.format %q (must be text or json)", c.Log.Format)
	}

	return nil
}

func (c *Config) resolve() {
	// Validate has already parsed every value once.
	c.Resolved.Horizon, _ = stats.ParseHorizon(c.Stats.Horizon)
	c.Resolved.RebuildInterval, _ = time.ParseDuration(c.Stats.RebuildInterval)
	c.Resolved.RebuildTimeout, _ = time.ParseDuration(c.Stats.RebuildTimeout)
	c.Resolved.RebuildBackoff, _ = time.ParseDuration(c.Stats.RebuildBackoff)
}

// Load parses config from defaults, file, then env, validates it, then loads seed campaigns.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":                8080,
		"server.host":                "0.0.0.0",
		"server.max_body_size_mb":    1,
		"server.mode":                "release",
		"database.type":              "postgres",
		"database.dsn":               "",
		"database.max_open_conns":    25,
		"database.max_idle_conns":    25,
		"database.auto_migrate":      true,
		"stats.horizon":              "30d",
		"stats.rebuild_interval":     "5m",
		"stats.rebuild_timeout":      "1m",
		"stats.rebuild_retries":      2,
		"stats.rebuild_backoff":      "1s",
		"stats.delta_threshold":      0,
		"stats.worker_count":         10,
		"stats.batch_size":           50000,
		"stats.best_keywords_limit":  stats.DefaultBestKeywordsLimit,
		"selection.cold_start_score": 0.001,
		"selection.max_results":      0,
		"catalog.seed_dir":           "./config/campaigns",
		"notify.enabled":             false,
		"notify.addr":                "localhost:6379",
		"notify.db":                  0,
		"notify.channel":             "adselect:impressions",
		"log.level":                  "info",
		"log.format":                 "text",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolve()

	loader, err := catalog.NewFileSystemLoader(cfg.Catalog.SeedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed campaigns: %w", err)
	}
	cfg.Resolved.Seeds = loader.Campaigns()

	return &cfg, nil
}
