package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Artifacts   ArtifactsConfig `mapstructure:"artifacts"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Artifact sources
const (
	ArtifactSourceDir      = "dir"
	ArtifactSourceSQLite   = "sqlite"
	ArtifactSourcePostgres = "postgres"
)

// ArtifactsConfig selects where the encoder bundle and models are loaded from.
type ArtifactsConfig struct {
	Source         string `mapstructure:"source"`
	Dir            string `mapstructure:"dir"`
	SQLitePath     string `mapstructure:"sqlite_path"`
	Version        string `mapstructure:"version"` // empty loads the latest imported bundle
	MigrationsPath string `mapstructure:"migrations_path"`
}

// DatabaseConfig represents the Postgres artifact registry connection
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinConns        int           `mapstructure:"min_conns"` // connections the pool keeps open
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// InferenceConfig configures stages served by a remote model endpoint.
type InferenceConfig struct {
	RemoteTimeout     time.Duration `mapstructure:"remote_timeout"`
	RemoteRateLimit   int           `mapstructure:"remote_rate_limit"` // requests per second
	BreakerMaxRequest uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval   time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
}

// CacheConfig represents prediction cache configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	MaxItems int           `mapstructure:"max_items"`
	TTL      time.Duration `mapstructure:"ttl"`
	RedisURL string        `mapstructure:"redis_url"` // optional second tier
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
