package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the decision server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Decision DecisionConfig `yaml:"decision"`
	Writer   WriterConfig   `yaml:"writer"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (c ServerConfig) GetHost() string {
	if c.Host == "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings. Redis only backs the
// cache-refresh dedup lock; the server runs fine without it.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DecisionConfig holds decision engine tunables.
type DecisionConfig struct {
	// CacheTTLSeconds bounds experiment config staleness. 0 means the
	// 60-second default.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	// RefreshLockTTLSeconds is the dedup lock expiry for cache refreshes.
	RefreshLockTTLSeconds int `yaml:"refresh_lock_ttl_seconds"`
}

// CacheTTL returns the configured TTL as a duration, 0 when unset.
func (c DecisionConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RefreshLockTTL returns the dedup lock TTL, defaulting to 10 seconds.
func (c DecisionConfig) RefreshLockTTL() time.Duration {
	if c.RefreshLockTTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.RefreshLockTTLSeconds) * time.Second
}

// WriterConfig holds assignment writer pool tunables. The failure policy is
// configuration, not code: MaxAttempts 1 is log-and-drop, higher values
// retry with RetryBackoffMS between attempts.
type WriterConfig struct {
	NumWorkers          int `yaml:"num_workers"`
	QueueSize           int `yaml:"queue_size"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	RetryMaxAttempts    int `yaml:"retry_max_attempts"`
	RetryBackoffMS      int `yaml:"retry_backoff_ms"`
}

// WriteTimeout returns the per-write timeout, 0 when unset.
func (c WriterConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// RetryBackoff returns the backoff between retry attempts.
func (c WriterConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMS) * time.Millisecond
}

// Load reads configuration from a YAML file. A missing file is not an
// error: all settings have environment or built-in defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	return cfg, nil
}

// LoadFromEnv loads the YAML config and applies environment overrides.
// A .env file is honored if present.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DECISION_CACHE_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil {
			cfg.Decision.CacheTTLSeconds = ttl
		}
	}
	if v := os.Getenv("WRITER_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Writer.RetryMaxAttempts = n
		}
	}

	return cfg, nil
}
