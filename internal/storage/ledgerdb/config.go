package ledgerdb

import (
	"fmt"
	"net/url"
	"time"
)

// Config contains database configuration settings.
type Config struct {
	// DSN is the postgres connection URL, typically taken verbatim from
	// the DATABASE_URL environment variable.
	DSN string `json:"dsn"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`

	// DefaultTimeout bounds connection checks and schema bootstrap.
	DefaultTimeout time.Duration `json:"default_timeout"`
}

// NewConfig creates a Config with pool defaults suitable for the engine's
// concurrency level.
func NewConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		DefaultTimeout:  30 * time.Second,
	}
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrMissingDSN
	}

	u, err := url.Parse(c.DSN)
	if err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	switch u.Scheme {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("%w: %s", ErrInvalidDriver, u.Scheme)
	}

	if c.MaxOpenConns < 0 {
		return fmt.Errorf("max open connections must be >= 0")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections must be >= 0")
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle connections cannot exceed max open connections")
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default timeout must be positive")
	}

	return nil
}

// Redacted returns the DSN with any password replaced, for logging.
func (c *Config) Redacted() string {
	u, err := url.Parse(c.DSN)
	if err != nil {
		return "(unparsable dsn)"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}
