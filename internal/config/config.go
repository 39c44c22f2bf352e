package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Cache       CacheConfig       `yaml:"cache"`
	Series      SeriesConfig      `yaml:"series"`
	Trend       TrendConfig       `yaml:"trend"`
	Insights    InsightsConfig    `yaml:"insights"`
	Sync        SyncConfig        `yaml:"sync"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	MaxSizeBytes  int64         `yaml:"max_size_bytes"`
	MaxEntryBytes int64         `yaml:"max_entry_bytes"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	Compression   string        `yaml:"compression"`
	EncryptionKey string        `yaml:"encryption_key"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type SeriesConfig struct {
	Capacity int `yaml:"capacity"`
}

type TrendConfig struct {
	MinSamples   int     `yaml:"min_samples"`
	StableBand   float64 `yaml:"stable_band"`
	AnomalySigma float64 `yaml:"anomaly_sigma"`
}

type ThresholdConfig struct {
	Metric   string  `yaml:"metric"`
	Warn     float64 `yaml:"warn"`
	Critical float64 `yaml:"critical"`
	Above    bool    `yaml:"above"`
}

type InsightsConfig struct {
	Thresholds  []ThresholdConfig `yaml:"thresholds"`
	MaxInsights int               `yaml:"max_insights"`
	Bucket      time.Duration     `yaml:"bucket"`
}

type SyncConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MinCycleGap time.Duration `yaml:"min_cycle_gap"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PersistenceConfig struct {
	// Backend is "none", "file" or "redis".
	Backend  string        `yaml:"backend"`
	Path     string        `yaml:"path"`
	RedisURL string        `yaml:"redis_url"`
	RedisKey string        `yaml:"redis_key"`
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			LogLevel: "info",
		},
		Series: SeriesConfig{
			Capacity: 1000,
		},
		Insights: InsightsConfig{
			MaxInsights: 10,
			Bucket:      5 * time.Minute,
		},
		Sync: SyncConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Timeout:     15 * time.Second,
		},
		Persistence: PersistenceConfig{
			Backend: "none",
		},
	}
}

// Load reads a YAML config file, layering it over the defaults and
// then applying environment overrides. An empty path returns defaults
// plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints not covered by the
// subsystem configs.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Persistence.Backend {
	case "", "none", "file", "redis":
	default:
		return fmt.Errorf("config: unknown persistence backend %q", c.Persistence.Backend)
	}
	if c.Persistence.Backend == "file" && c.Persistence.Path == "" {
		return fmt.Errorf("config: file persistence requires a path")
	}
	if c.Persistence.Backend == "redis" && c.Persistence.RedisURL == "" {
		return fmt.Errorf("config: redis persistence requires a url")
	}
	if c.Sync.Interval > 0 && c.Sync.Endpoint == "" {
		return fmt.Errorf("config: scheduled sync requires an endpoint")
	}
	return nil
}
