// Package config loads runtime configuration from an optional YAML file with
// environment variable overrides. Environment always wins, so deployments can
// ship one file and tweak per instance.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kaizenhq/a3hub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Limits        LimitsConfig        `yaml:"limits"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL          string        `yaml:"url"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

// RedisConfig holds the optional shared rate-limit store configuration.
// When Addr is empty the limiter uses its in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LimitsConfig holds the abuse-control knobs
type LimitsConfig struct {
	SearchRateLimit     int           `yaml:"search_rate_limit"`
	SearchRateWindow    time.Duration `yaml:"search_rate_window"`
	MaxContentDepth     int           `yaml:"max_content_depth"`
	MaxContentBytes     int           `yaml:"max_content_bytes"`
	MaxTitleLength      int           `yaml:"max_title_length"`
	MembershipCacheSize int           `yaml:"membership_cache_size"`
}

// ObservabilityConfig holds logging and metrics settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// Load builds the configuration: defaults, then the YAML file at path if one
// is given, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = observability.ParseLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			URL:          "postgres://localhost:5432/a3hub?sslmode=disable",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 5 * time.Minute,
		},
		Limits: LimitsConfig{
			SearchRateLimit:     20,
			SearchRateWindow:    time.Minute,
			MaxContentDepth:     10,
			MaxContentBytes:     50 * 1024,
			MaxTitleLength:      200,
			MembershipCacheSize: 1024,
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("A3HUB_HOST", c.Server.Host)
	c.Server.Port = getEnv("A3HUB_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("A3HUB_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("A3HUB_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("A3HUB_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("A3HUB_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("A3HUB_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.URL = getEnv("A3HUB_POSTGRES_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("A3HUB_POSTGRES_MAX_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("A3HUB_POSTGRES_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Redis.Addr = getEnv("A3HUB_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("A3HUB_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("A3HUB_REDIS_DB", c.Redis.DB)

	c.Limits.SearchRateLimit = getEnvInt("A3HUB_SEARCH_RATE_LIMIT", c.Limits.SearchRateLimit)
	c.Limits.SearchRateWindow = getEnvDuration("A3HUB_SEARCH_RATE_WINDOW", c.Limits.SearchRateWindow)
	c.Limits.MaxContentDepth = getEnvInt("A3HUB_MAX_CONTENT_DEPTH", c.Limits.MaxContentDepth)
	c.Limits.MaxContentBytes = getEnvInt("A3HUB_MAX_CONTENT_BYTES", c.Limits.MaxContentBytes)
	c.Limits.MaxTitleLength = getEnvInt("A3HUB_MAX_TITLE_LENGTH", c.Limits.MaxTitleLength)
	c.Limits.MembershipCacheSize = getEnvInt("A3HUB_MEMBERSHIP_CACHE_SIZE", c.Limits.MembershipCacheSize)

	c.Observability.LogLevelName = getEnv("A3HUB_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("A3HUB_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Limits.SearchRateLimit <= 0 {
		return fmt.Errorf("search rate limit must be positive")
	}
	if c.Limits.SearchRateWindow <= 0 {
		return fmt.Errorf("search rate window must be positive")
	}
	if c.Limits.MaxContentDepth <= 0 {
		return fmt.Errorf("max content depth must be positive")
	}
	if c.Limits.MaxContentBytes <= 0 {
		return fmt.Errorf("max content bytes must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
