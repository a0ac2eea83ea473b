// Package config loads the catalog import service settings from the
// environment and validates them on startup.
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
	Import   ImportConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"3m"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 3m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"3m"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig bounds the import pipeline.
type ImportConfig struct {
	// MaxFileSize is the maximum upload size; plain bytes or a KiB/MiB/KB/MB suffix (default: 20MiB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20MiB" unit:"bytes"`

	// MaxRows is the maximum number of non-blank rows per upload (default: 10000)
	MaxRows int `env:"IMPORT_MAX_ROWS" default:"10000"`

	// MaxConcurrent bounds parse, validate and commit work in flight (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// LockWait is how long an operation waits for a busy session or scope (default: 5s)
	LockWait time.Duration `env:"IMPORT_LOCK_WAIT" default:"5s"`

	// CommitTimeout bounds one commit attempt (default: 2m)
	CommitTimeout time.Duration `env:"IMPORT_COMMIT_TIMEOUT" default:"2m"`

	// AliasFile is an optional YAML file of extra column aliases
	AliasFile string `env:"IMPORT_ALIAS_FILE"`

	// SourceLinkExpiry is the lifetime of presigned source download links (default: 15m)
	SourceLinkExpiry time.Duration `env:"IMPORT_SOURCE_LINK_EXPIRY" default:"15m"`
}

// RedisConfig holds event delivery settings. Redis is optional.
type RedisConfig struct {
	URL          string `env:"REDIS_URL"`
	EventChannel string `env:"REDIS_EVENT_CHANNEL" default:"catalog.import.events"`
}

// Enabled reports whether a Redis URL is configured.
func (c *RedisConfig) Enabled() bool { return c.URL != "" }

// BlobConfig selects where uploaded source files are archived.
type BlobConfig struct {
	// Driver is one of none, memory, s3 (default: none)
	Driver string `env:"BLOB_DRIVER" default:"none"`

	S3Bucket    string `env:"BLOB_S3_BUCKET"`
	S3Region    string `env:"BLOB_S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	S3Endpoint  string `env:"BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `env:"BLOB_S3_PATH_STYLE" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey rejects requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
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
