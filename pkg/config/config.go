package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// CacheConfig selects and tunes the permission cache backend.
type CacheConfig struct {
	// Backend is "memory" or "redis".
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// AuditConfig controls audit persistence and retention.
type AuditConfig struct {
	Enabled       bool
	RetentionDays int
	// PruneSchedule is a cron expression for the retention job.
	PruneSchedule string
}

// ObservabilityConfig holds logging, metrics, and tracing settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("KEYSTONE_HOST", "0.0.0.0"),
			Port:            getEnv("KEYSTONE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("KEYSTONE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("KEYSTONE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("KEYSTONE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("KEYSTONE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("KEYSTONE_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("KEYSTONE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("KEYSTONE_POSTGRES_MAX_CONNS", 25),
			MaxIdleConns: getEnvInt("KEYSTONE_POSTGRES_IDLE_CONNS", 5),
			ConnLifetime: getEnvDuration("KEYSTONE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		},
		Cache: CacheConfig{
			Backend:       getEnv("KEYSTONE_CACHE_BACKEND", "memory"),
			TTL:           getEnvDuration("KEYSTONE_CACHE_TTL", 5*time.Minute),
			SweepInterval: getEnvDuration("KEYSTONE_CACHE_SWEEP_INTERVAL", 10*time.Minute),
			RedisURL:      getEnv("KEYSTONE_REDIS_URL", ""),
			RedisPassword: getEnv("KEYSTONE_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("KEYSTONE_REDIS_DB", 0),
		},
		Audit: AuditConfig{
			Enabled:       getEnvBool("KEYSTONE_AUDIT_ENABLED", true),
			RetentionDays: getEnvInt("KEYSTONE_AUDIT_RETENTION_DAYS", 90),
			PruneSchedule: getEnv("KEYSTONE_AUDIT_PRUNE_SCHEDULE", "0 3 * * *"),
		},
		Observability: ObservabilityConfig{
			LogLevel:           getEnv("KEYSTONE_LOG_LEVEL", "info"),
			LogFormat:          getEnv("KEYSTONE_LOG_FORMAT", "json"),
			MetricsEnabled:     getEnvBool("KEYSTONE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("KEYSTONE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("KEYSTONE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("KEYSTONE_OTEL_SERVICE_NAME", "keystone"),
			OTelServiceVersion: getEnv("KEYSTONE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("KEYSTONE_OTEL_INSECURE", true),
		},
		Environment: getEnv("KEYSTONE_ENV", "production"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
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

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Audit.Enabled && c.Audit.RetentionDays <= 0 {
		return fmt.Errorf("audit retention days must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development
// environment. Development exposes raw error detail in 5xx responses.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Environment)
	return env == "development" || env == "dev" || env == "local"
}

// getEnv returns an environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
