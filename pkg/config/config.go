package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for gheregistry.
type Config struct {
	Server        ServerConfig   `yaml:"server"`
	Database      DatabaseConfig `yaml:"database"`
	Probe         ProbeConfig    `yaml:"probe"`
	Auth          AuthConfig     `yaml:"auth"`
	Organizations []string       `yaml:"organizations"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Public        RateLimitTier `yaml:"public"`
	Authenticated RateLimitTier `yaml:"authenticated"`
}

// RateLimitTier is the request budget of one group of endpoints.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// SQLiteConfig contains SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig contains PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig contains Redis-specific settings.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// ProbeConfig contains settings for the GitHub identity probe.
type ProbeConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	Token           string        `yaml:"token"`
	UserAgent       string        `yaml:"user_agent"`
	MonitorInterval time.Duration `yaml:"monitor_interval"` // default 5m, negative to disable
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// IsEnabled reports whether bearer token verification is on. It defaults to true.
func (a AuthConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Load reads and parses configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables.
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var (
	bracedEnvVar = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	bareEnvVar   = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// expandEnvVars replaces ${VAR} and $VAR patterns with environment variable values.
// Unknown variables are left untouched.
func expandEnvVars(s string) string {
	s = bracedEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}

		return match
	})

	return bareEnvVar.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[1:]); ok {
			return val
		}

		return match
	})
}

// applyDefaults sets default values for unset configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}

	if cfg.Server.RateLimit.Public.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.Public.RequestsPerMinute = 120
	}

	if cfg.Server.RateLimit.Authenticated.RequestsPerMinute == 0 {
		cfg.Server.RateLimit.Authenticated.RequestsPerMinute = 600
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}

	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "./gheregistry.db"
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}

	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Database.Redis.Addr == "" {
		cfg.Database.Redis.Addr = "localhost:6379"
	}

	if cfg.Database.Redis.KeyPrefix == "" {
		cfg.Database.Redis.KeyPrefix = "gheregistry"
	}

	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 10 * time.Second
	}

	if cfg.Probe.UserAgent == "" {
		cfg.Probe.UserAgent = "gheregistry"
	}

	if cfg.Probe.MonitorInterval == 0 {
		cfg.Probe.MonitorInterval = 5 * time.Minute
	}

	if len(cfg.Organizations) == 0 {
		cfg.Organizations = []string{"jenkins"}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when driver is sqlite")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres.host is required when driver is postgres")
		}

		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres.database is required when driver is postgres")
		}
	case "redis":
		if c.Database.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when driver is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Public.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit.public.requests_per_minute must be positive")
		}

		if c.Server.RateLimit.Authenticated.RequestsPerMinute <= 0 {
			return fmt.Errorf("server.rate_limit.authenticated.requests_per_minute must be positive")
		}
	}

	if c.Probe.Timeout < 0 {
		return fmt.Errorf("probe.timeout must not be negative")
	}

	if c.Auth.IsEnabled() && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}

	seen := make(map[string]bool, len(c.Organizations))

	for _, org := range c.Organizations {
		if strings.TrimSpace(org) == "" {
			return fmt.Errorf("organization name must not be empty")
		}

		if seen[org] {
			return fmt.Errorf("duplicate organization: %s", org)
		}

		seen[org] = true
	}

	return nil
}

// HasOrganization reports whether org is one of the configured organizations.
func (c *Config) HasOrganization(org string) bool {
	for _, o := range c.Organizations {
		if o == org {
			return true
		}
	}

	return false
}

// GetDSN returns the database connection string.
func (c *Config) GetDSN() string {
	switch c.Database.Driver {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	case "redis":
		return c.Database.Redis.Addr
	default:
		return ""
	}
}

// String returns a sanitized string representation of the config (no secrets).
func (c *Config) String() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Server: listen=%s rate_limit=%t\n", c.Server.Listen, c.Server.RateLimit.Enabled))
	sb.WriteString(fmt.Sprintf("Database: driver=%s\n", c.Database.Driver))
	sb.WriteString(fmt.Sprintf("Probe: timeout=%s monitor_interval=%s token=%t\n",
		c.Probe.Timeout, c.Probe.MonitorInterval, c.Probe.Token != ""))
	sb.WriteString(fmt.Sprintf("Auth: enabled=%t issuer=%q\n", c.Auth.IsEnabled(), c.Auth.Issuer))
	sb.WriteString(fmt.Sprintf("Organizations: %s\n", strings.Join(c.Organizations, ",")))

	return sb.String()
}
