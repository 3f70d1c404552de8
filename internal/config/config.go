package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port     string
	RedisURL string
	MongoURI string

	// Pipeline tuning
	WindowSize    time.Duration // retained history per user
	FlushInterval time.Duration // durable batch flush tick
	BatchSize     int           // flush when the buffer reaches this many samples
	MaxConcurrent int           // admission-control budget
	OverflowTTL   time.Duration // how long overflowed samples stay queued
	SnapshotTTL   time.Duration // analytics read cache TTL

	// Validation mode: strict rejects contradictory readings, lenient
	// downgrades them to warnings and accepts the sanitized sample.
	StrictValidation bool

	// Thresholds file (YAML, hot-reloaded)
	ThresholdsPath string

	// Auth
	JWTSecret     string
	DeviceAPIKeys []string // argon2id hashes of accepted device keys

	// Retention
	SampleRetention  time.Duration
	EpisodeRetention time.Duration

	// Ingest rate limiting (per device)
	IngestRateLimit float64 // samples per second
	IngestBurst     int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	// Parse device API key hashes (comma-separated)
	var deviceKeys []string
	if raw := getEnv("DEVICE_API_KEY_HASHES", ""); raw != "" {
		deviceKeys = strings.Split(raw, ",")
		for i := range deviceKeys {
			deviceKeys[i] = strings.TrimSpace(deviceKeys[i])
		}
	}

	return &Config{
		Port:     getEnv("PORT", "3002"),
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
		MongoURI: getEnv("MONGODB_URI", ""),

		WindowSize:    getDurationEnv("WINDOW_SIZE", 5*time.Minute),
		FlushInterval: getDurationEnv("FLUSH_INTERVAL", time.Second),
		BatchSize:     getIntEnv("BATCH_SIZE", 100),
		MaxConcurrent: getIntEnv("MAX_CONCURRENT", 100),
		OverflowTTL:   getDurationEnv("OVERFLOW_TTL", 5*time.Minute),
		SnapshotTTL:   getDurationEnv("SNAPSHOT_TTL", 10*time.Second),

		StrictValidation: getBoolEnv("STRICT_VALIDATION", false),

		ThresholdsPath: getEnv("THRESHOLDS_PATH", "thresholds.yaml"),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		DeviceAPIKeys: deviceKeys,

		SampleRetention:  getDurationEnv("SAMPLE_RETENTION", 30*24*time.Hour),
		EpisodeRetention: getDurationEnv("EPISODE_RETENTION", 90*24*time.Hour),

		IngestRateLimit: getFloatEnv("INGEST_RATE_LIMIT", 10),
		IngestBurst:     getIntEnv("INGEST_BURST", 30),
	}
}

// Validate checks for fatal misconfiguration. The pipeline degrades at
// runtime rather than halting, so startup is the only place that refuses to
// run.
func (c *Config) Validate() error {
	if c.WindowSize <= 0 {
		return ErrInvalidWindowSize
	}
	if c.FlushInterval <= 0 {
		return ErrInvalidFlushInterval
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxConcurrent <= 0 {
		return ErrInvalidMaxConcurrent
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
