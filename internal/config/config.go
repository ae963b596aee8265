// Package config reads service configuration from the environment with typed
// getters and sensible defaults. Every knob has an env var; nothing is read
// from flags or files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Recipes RecipesConfig
	Browser BrowserConfig
	Output  OutputConfig
	Storage StorageConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type RecipesConfig struct {
	// Dir holds the recipe YAML/JSON files.
	Dir string
}

type BrowserConfig struct {
	// Enabled controls whether the headless provider is started at all.
	// Recipes asking for scripted rendering degrade to plain HTTP when off.
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	UserAgent      string
}

type OutputConfig struct {
	// Dir receives the per-job CSV artifacts.
	Dir string
	// ResultTTL is the expiry hint stamped on stored job results.
	ResultTTL time.Duration
}

// StorageConfig selects the JobResult store backend: "memory", "redis", or
// "postgres".
type StorageConfig struct {
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresDSN string
}

type LoggingConfig struct {
	Level string
	// File enables rotating file output when non-empty; stdout otherwise.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Recipes: RecipesConfig{
			Dir: getEnvOrDefault("RECIPES_DIR", "./recipes"),
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", true),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
		},
		Output: OutputConfig{
			Dir:       getEnvOrDefault("OUTPUT_DIR", "./output"),
			ResultTTL: getDurationOrDefault("RESULT_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			Backend:       getEnvOrDefault("STORAGE_BACKEND", "memory"),
			RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),
			RedisDB:       getIntOrDefault("REDIS_DB", 0),
			PostgresDSN:   getEnvOrDefault("POSTGRES_DSN", ""),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			File:       getEnvOrDefault("LOG_FILE", ""),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 28),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Recipes.Dir == "" {
		return fmt.Errorf("RECIPES_DIR must not be empty")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR must not be empty")
	}

	switch c.Storage.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	if c.Output.ResultTTL <= 0 {
		return fmt.Errorf("RESULT_TTL must be positive")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
