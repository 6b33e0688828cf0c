// Package pipelineconfig loads the environment-driven knobs for a pipeline
// deployment, following the teacher gateway's env+.env convention: an
// optional .env file via godotenv, then os.LookupEnv with typed fallbacks.
package pipelineconfig

import (
	"os"
	"strconv"
	"time"

	"github.com/alfred-ai/alfred-pipeline/semaphore"
	"github.com/joho/godotenv"
)

// Config holds every env-tunable knob spec §6 names across the Pipeline,
// ObjectPool, PoolRegistry, and ExecutionRecorder components.
type Config struct {
	Env string

	// Pipeline
	MaxDepth        int
	ContextPoolSize int
	UseContextPool  bool

	// Back-pressure semaphore
	MaxConcurrency   int
	MaxOutstanding   int
	MaxQueueMemory   int
	BackPressureMode string // "suspend" | "drop_oldest" | "drop_newest" | "error"

	// Object pool
	PoolMaxSize   int
	PoolHighWater int
	PoolLowWater  int

	// Pool registry
	RegistryCleanupInterval  time.Duration
	RegistryMinShrinkInterval time.Duration
	IntelligentShrinkingEnabled bool

	// Execution recorder
	RecorderMaxRecords int

	LogLevel string
}

// Load reads configuration from environment variables and an optional .env
// file, applying spec §6's defaults wherever a variable is unset.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env: getEnv("ENV", "development"),

		MaxDepth:        getEnvInt("PIPELINE_MAX_DEPTH", 100),
		ContextPoolSize: getEnvInt("PIPELINE_CONTEXT_POOL_SIZE", 50),
		UseContextPool:  getEnvBool("PIPELINE_USE_CONTEXT_POOL", true),

		MaxConcurrency:   getEnvInt("BACKPRESSURE_MAX_CONCURRENCY", 100),
		MaxOutstanding:   getEnvInt("BACKPRESSURE_MAX_OUTSTANDING", 0),
		MaxQueueMemory:   getEnvInt("BACKPRESSURE_MAX_QUEUE_MEMORY", 0),
		BackPressureMode: getEnv("BACKPRESSURE_STRATEGY", "suspend"),

		PoolMaxSize:   getEnvInt("OBJPOOL_MAX_SIZE", 100),
		PoolHighWater: getEnvInt("OBJPOOL_HIGH_WATER", 0),
		PoolLowWater:  getEnvInt("OBJPOOL_LOW_WATER", 0),

		RegistryCleanupInterval:    time.Duration(getEnvInt("REGISTRY_CLEANUP_INTERVAL_SEC", 30)) * time.Second,
		RegistryMinShrinkInterval:  time.Duration(getEnvInt("REGISTRY_MIN_SHRINK_INTERVAL_SEC", 10)) * time.Second,
		IntelligentShrinkingEnabled: getEnvBool("REGISTRY_INTELLIGENT_SHRINKING", true),

		RecorderMaxRecords: getEnvInt("RECORDER_MAX_RECORDS", 1000),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment reports whether Env is "development".
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// BackPressureStrategy translates BackPressureMode into a semaphore.Strategy,
// defaulting to StrategySuspend for an unrecognized value.
func (c *Config) BackPressureStrategy() semaphore.Strategy {
	switch c.BackPressureMode {
	case "drop_oldest":
		return semaphore.StrategyDropOldest
	case "drop_newest":
		return semaphore.StrategyDropNewest
	case "error":
		return semaphore.StrategyError
	default:
		return semaphore.StrategySuspend
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
