package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	os.Setenv("TEST_BOOL", "true")
	defer os.Unsetenv("TEST_BOOL")

	if !getEnvBool("TEST_BOOL", false) {
		t.Error("getEnvBool() = false, want true")
	}
	if getEnvBool("TEST_BOOL_NOT_SET", false) {
		t.Error("getEnvBool() = true, want false")
	}
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DURATION", "2m")
	defer os.Unsetenv("TEST_DURATION")

	if got := getEnvDuration("TEST_DURATION", time.Second); got != 2*time.Minute {
		t.Errorf("getEnvDuration() = %v, want 2m", got)
	}
	if got := getEnvDuration("TEST_DURATION_NOT_SET", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want 1s", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Setenv("KEYSTONE_POSTGRES_URL", "postgres://localhost/keystone_test")
	defer os.Unsetenv("KEYSTONE_POSTGRES_URL")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %v, want 8080", cfg.Server.Port)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("Cache.Backend = %v, want memory", cfg.Cache.Backend)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if !cfg.Audit.Enabled {
		t.Error("Audit.Enabled = false, want true")
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true for default environment")
	}
}

func TestLoadConfigMissingDatabase(t *testing.T) {
	os.Unsetenv("KEYSTONE_POSTGRES_URL")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() succeeded without a postgres URL")
	}
}

func TestValidateCacheBackend(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{URL: "postgres://localhost/keystone"},
		Cache:    CacheConfig{Backend: "memcached", TTL: time.Minute},
	}

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted an unknown cache backend")
	}

	cfg.Cache.Backend = "redis"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted redis backend without a URL")
	}

	cfg.Cache.RedisURL = "redis://localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
