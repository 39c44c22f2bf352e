package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("PULSE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("PULSE_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	// Cache settings
	if maxEntries := os.Getenv("PULSE_CACHE_MAX_ENTRIES"); maxEntries != "" {
		if n, err := strconv.Atoi(maxEntries); err == nil {
			cfg.Cache.MaxEntries = n
		}
	}

	if maxSize := os.Getenv("PULSE_CACHE_MAX_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			cfg.Cache.MaxSizeBytes = size
		}
	}

	if key := os.Getenv("PULSE_CACHE_ENCRYPTION_KEY"); key != "" {
		cfg.Cache.EncryptionKey = key
	}

	// Sync settings
	if endpoint := os.Getenv("PULSE_SYNC_ENDPOINT"); endpoint != "" {
		cfg.Sync.Endpoint = endpoint
	}

	if interval := os.Getenv("PULSE_SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Sync.Interval = d
		}
	}

	// Persistence settings
	if redisURL := os.Getenv("PULSE_REDIS_URL"); redisURL != "" {
		cfg.Persistence.Backend = "redis"
		cfg.Persistence.RedisURL = redisURL
	}
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
