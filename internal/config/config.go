package config

import (
	"errors"
	"time"
)

// Config represents the todovault service configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Session     SessionConfig     `mapstructure:"session"`
	Pools       PoolConfig        `mapstructure:"pools"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents the PostgreSQL engine hosting the central
// registry database and every per-tenant store
type DatabaseConfig struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	RegistryDatabase string `mapstructure:"registry_database"`
	User             string `mapstructure:"user"`
	Password         string `mapstructure:"password"`
	MaxConnections   int    `mapstructure:"max_connections"`
	MinConnections   int    `mapstructure:"min_connections"`
}

// SessionConfig represents credential transport configuration
type SessionConfig struct {
	Secret        string        `mapstructure:"secret"`
	CookieDomain  string        `mapstructure:"cookie_domain"`
	CookieSecure  bool          `mapstructure:"cookie_secure"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`
}

// PoolConfig represents per-tenant connection pool configuration
type PoolConfig struct {
	TenantMaxConns   int           `mapstructure:"tenant_max_conns"`
	ProvisionTimeout time.Duration `mapstructure:"provision_timeout"`
	ReapInterval     time.Duration `mapstructure:"reap_interval"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
}

// RateLimiterConfig represents rate limiting configuration
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.RegistryDatabase == "" {
		return errors.New("database.registry_database is required")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Session.Secret == "" {
		return errors.New("session.secret is required")
	}
	if c.Session.TokenLifetime <= 0 {
		return errors.New("session.token_lifetime must be positive")
	}
	if c.Pools.TenantMaxConns <= 0 {
		return errors.New("pools.tenant_max_conns must be positive")
	}
	if c.Pools.IdleTimeout <= 0 {
		return errors.New("pools.idle_timeout must be positive")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:             "localhost",
			Port:             5432,
			RegistryDatabase: "todovault_registry",
			User:             "todovault",
			Password:         "",
			MaxConnections:   10,
			MinConnections:   2,
		},
		Session: SessionConfig{
			Secret:        "",
			CookieDomain:  "",
			CookieSecure:  true,
			TokenLifetime: 24 * time.Hour,
		},
		Pools: PoolConfig{
			TenantMaxConns:   4,
			ProvisionTimeout: 10 * time.Second,
			ReapInterval:     5 * time.Minute,
			IdleTimeout:      30 * time.Minute,
		},
		RateLimiter: RateLimiterConfig{
			Enabled:           true,
			RequestsPerSecond: 100,
			BurstSize:         200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
