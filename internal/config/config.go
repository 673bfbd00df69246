// Package config provides centralized configuration management for the
// import server and CLI. It loads configuration from environment variables
// with defaults and validates all settings on startup.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Import   ImportConfig
	Storage  StorageConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout bounds reading the request, including the upload (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout bounds writing the response (default: 0, synchronous imports can be slow)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// AutoMigrate creates missing tables at startup (default: true)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig holds the optional Redis connection used for key locks and
// progress counters.
type RedisConfig struct {
	// URL is a redis:// connection string. Empty disables Redis.
	URL string `env:"REDIS_URL"`

	// LockTTL bounds how long a crashed process can hold a duplicate-key lock (default: 30s)
	LockTTL time.Duration `env:"REDIS_LOCK_TTL" default:"30s"`
}

// ImportConfig holds import session settings.
type ImportConfig struct {
	// MaxFileSize is the maximum upload size; accepts units like 20MB (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20MB"`

	// MaxConcurrent is the maximum number of committing sessions (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a session slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single session (default: 10m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"10m"`

	// Workers is the row preparation parallelism, 0 for one per CPU (default: 0)
	Workers int `env:"IMPORT_WORKERS" default:"0"`

	// DefaultPolicy is applied when a request names none: skip or update (default: skip)
	DefaultPolicy string `env:"IMPORT_DUPLICATE_POLICY" default:"skip"`

	// MobilePrefixes are the digits allowed after the leading 0 of a phone number (default: 67)
	MobilePrefixes string `env:"IMPORT_MOBILE_PREFIXES" default:"67"`

	// AliasFile is an optional YAML file with extra header aliases
	AliasFile string `env:"IMPORT_ALIAS_FILE"`
}

// StorageConfig holds settings for reading spreadsheets from S3.
type StorageConfig struct {
	// Region is the AWS region of the bucket (default: eu-west-3)
	Region string `env:"S3_REGION" envAlt:"AWS_REGION" default:"eu-west-3"`

	// MaxObjectSize caps the size of fetched objects (default: 20MB)
	MaxObjectSize int64 `env:"S3_MAX_OBJECT_SIZE" default:"20MB"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
