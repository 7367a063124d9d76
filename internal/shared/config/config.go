package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Audit sink names accepted in AUDIT_SINKS
const (
	SinkLog      = "log"
	SinkDatabase = "database"
	SinkSQLite   = "sqlite"
	SinkNATS     = "nats"
)

// Config holds all configuration for the AI service manager
type Config struct {
	// Server
	Port     string `envconfig:"PORT" default:"8080"`
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// RequestTimeout bounds a whole HTTP request, retries included
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"120s"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`

	// Provider configuration
	ProvidersFile           string        `envconfig:"PROVIDERS_FILE"`
	ProviderRefreshInterval time.Duration `envconfig:"PROVIDER_REFRESH_INTERVAL" default:"30s"`
	CredentialsKey          string        `envconfig:"CREDENTIALS_KEY"`

	// Dispatch
	DispatchDeadline time.Duration `envconfig:"DISPATCH_DEADLINE" default:"0s"`

	// Gateway API key rate limiting
	DefaultRateLimit int `envconfig:"DEFAULT_RATE_LIMIT" default:"100"`

	// Caching
	CacheEnabled       bool          `envconfig:"CACHE_ENABLED" default:"true"`
	CacheBackend       string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL           time.Duration `envconfig:"CACHE_TTL" default:"1h"`
	CachePurgeSchedule string        `envconfig:"CACHE_PURGE_SCHEDULE" default:"@every 5m"`

	// Audit
	AuditSinks       []string `envconfig:"AUDIT_SINKS" default:"log"`
	AuditSQLitePath  string   `envconfig:"AUDIT_SQLITE_PATH" default:"data/audit.db"`
	NatsURL          string   `envconfig:"NATS_URL"`
	NatsAuditSubject string   `envconfig:"NATS_AUDIT_SUBJECT" default:"ai.requests"`

	// Metrics
	MetricsFlushSchedule string `envconfig:"METRICS_FLUSH_SCHEDULE" default:"@every 1m"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && c.ProvidersFile == "" {
		return fmt.Errorf("DATABASE_URL or PROVIDERS_FILE is required")
	}
	// API keys live in Postgres; production never serves /v1 unauthenticated
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENV=production")
	}

	switch c.CacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want memory or redis)", c.CacheBackend)
	}

	for i, s := range c.AuditSinks {
		s = strings.ToLower(strings.TrimSpace(s))
		c.AuditSinks[i] = s
		switch s {
		case SinkLog:
		case SinkDatabase:
			if c.DatabaseURL == "" {
				return fmt.Errorf("audit sink %q requires DATABASE_URL", s)
			}
		case SinkSQLite:
			if c.AuditSQLitePath == "" {
				return fmt.Errorf("audit sink %q requires AUDIT_SQLITE_PATH", s)
			}
		case SinkNATS:
			if c.NatsURL == "" {
				return fmt.Errorf("audit sink %q requires NATS_URL", s)
			}
		default:
			return fmt.Errorf("unknown audit sink %q", s)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DispatchDeadline < 0 {
		return fmt.Errorf("DISPATCH_DEADLINE must not be negative")
	}
	return nil
}

// IsProduction reports whether ENV is production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
