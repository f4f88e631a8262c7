// Package config provides application configuration management from
// environment variables.
//
// All settings carry sensible defaults except the database URL, which is
// required.
//
// Server settings:
//
//	KEYSTONE_HOST="0.0.0.0"
//	KEYSTONE_PORT="8080"
//	KEYSTONE_HEALTH_PORT="9090"
//	KEYSTONE_READ_TIMEOUT="15s"
//	KEYSTONE_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	KEYSTONE_POSTGRES_URL="postgres://localhost/keystone"
//	KEYSTONE_POSTGRES_MAX_CONNS="25"
//
// Cache settings:
//
//	KEYSTONE_CACHE_BACKEND="memory"  # memory or redis
//	KEYSTONE_CACHE_TTL="5m"
//	KEYSTONE_REDIS_URL="redis://localhost:6379"
//
// Audit settings:
//
//	KEYSTONE_AUDIT_ENABLED="true"
//	KEYSTONE_AUDIT_RETENTION_DAYS="90"
//	KEYSTONE_AUDIT_PRUNE_SCHEDULE="0 3 * * *"
//
// Observability settings:
//
//	KEYSTONE_LOG_LEVEL="info"
//	KEYSTONE_LOG_FORMAT="json"
//	KEYSTONE_METRICS_ENABLED="true"
//	KEYSTONE_OTEL_ENABLED="false"
//	KEYSTONE_OTEL_ENDPOINT="localhost:4317"
package config
