// Package config provides centralized configuration management for colsearch.
// It loads configuration from environment variables with defaults and validates
// all settings on startup to fail fast on misconfiguration.
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
	Search   SearchConfig
	Export   ExportConfig
	History  HistoryConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Tools    ToolsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 127.0.0.1)
	Host string `env:"SERVER_HOST" default:"127.0.0.1"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 by default so SSE progress streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-streaming handlers.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds run history database settings.
// An empty URL keeps history in memory only.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a history database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// SearchConfig holds settings for multi-file column searches.
type SearchConfig struct {
	// MaxConcurrent is the maximum number of searches running at once (default: 2)
	MaxConcurrent int `env:"SEARCH_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long a new search waits for a free slot (default: 10s)
	MaxWaitTime time.Duration `env:"SEARCH_MAX_WAIT_TIME" default:"10s"`

	// Timeout bounds a whole search run (default: 30m)
	Timeout time.Duration `env:"SEARCH_TIMEOUT" default:"30m"`

	// FileTypes are the extensions searched when a request names none.
	FileTypes []string `env:"SEARCH_FILE_TYPES" default:"csv,tsv,txt,xlsx"`

	// MaxFileSize skips files larger than this many bytes (default: 200MB)
	MaxFileSize int64 `env:"SEARCH_MAX_FILE_SIZE" default:"209715200"`

	// SniffBytes is the leading chunk used for encoding detection (default: 64KB)
	SniffBytes int `env:"SEARCH_SNIFF_BYTES" default:"65536"`

	// SniffLines is the number of leading lines used for delimiter detection.
	SniffLines int `env:"SEARCH_SNIFF_LINES" default:"20"`

	// ResultRetention is how long finished runs stay queryable (default: 30m)
	ResultRetention time.Duration `env:"SEARCH_RESULT_RETENTION" default:"30m"`
}

// ExportConfig holds aggregated export settings.
type ExportConfig struct {
	// Dir is where server-side exports are written (default: exports)
	Dir string `env:"EXPORT_DIR" default:"exports"`
}

// HistoryConfig holds run history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long run summaries are kept (default: 90)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"90"`

	// PurgeInterval is how often old summaries are purged (default: 24h)
	PurgeInterval time.Duration `env:"HISTORY_PURGE_INTERVAL" default:"24h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// SearchLimit is requests per minute for search start endpoints (default: 10)
	SearchLimit int `env:"RATE_LIMIT_SEARCH" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// AllowedRoots limits the server paths HTTP requests may read or write
	// to these absolute folders. Empty allows any path.
	AllowedRoots []string `env:"ALLOWED_ROOTS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// ToolsConfig holds settings for the utility tools.
type ToolsConfig struct {
	// JavaBin is the java executable used by the DLQ runner (default: java)
	JavaBin string `env:"DLQ_JAVA_BIN" default:"java"`

	// DLQTimeout bounds a single DLQ JAR run (default: 15m)
	DLQTimeout time.Duration `env:"DLQ_TIMEOUT" default:"15m"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
