// Package config loads the ledger's runtime configuration from the
// environment, with optional .env file support for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the complete runtime configuration of the ledger daemon.
type Config struct {
	// LedgerPublicKey is the ledger's public identity on the substrate;
	// requests address it with their first recipient tag.
	LedgerPublicKey string `mapstructure:"nostr_public_key"`

	// LedgerPrivateKey signs outgoing events. Optional; without it events
	// are published unsigned.
	LedgerPrivateKey string `mapstructure:"nostr_private_key"`

	// MinterPublicKey is the only identity allowed to mint and burn.
	MinterPublicKey string `mapstructure:"minter_public_key"`

	// Relays is the comma-separated list of relay websocket URLs.
	Relays []string `mapstructure:"-"`

	// DatabaseURL is the postgres connection string.
	DatabaseURL string `mapstructure:"database_url"`

	// Port serves health and metrics over HTTP.
	Port int `mapstructure:"port"`

	// RepublishInterval delays the second balance announcement round.
	RepublishInterval time.Duration `mapstructure:"-"`

	// MaxRetries bounds handler re-entries on transient faults.
	MaxRetries int `mapstructure:"max_retries"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	for _, key := range []string{
		"nostr_public_key", "nostr_private_key", "minter_public_key",
		"nostr_relays", "database_url", "port",
		"republish_interval_ms", "max_retries", "log_level",
	} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Relays = splitRelays(v.GetString("nostr_relays"))
	cfg.RepublishInterval = time.Duration(v.GetInt("republish_interval_ms")) * time.Millisecond

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("republish_interval_ms", 1000)
	v.SetDefault("max_retries", 10)
	v.SetDefault("log_level", "info")
}

// Validate checks required fields and value shapes.
func (c *Config) Validate() error {
	if c.LedgerPublicKey == "" {
		return fmt.Errorf("NOSTR_PUBLIC_KEY is required")
	}
	if err := checkHexKey(c.LedgerPublicKey); err != nil {
		return fmt.Errorf("NOSTR_PUBLIC_KEY: %w", err)
	}
	if c.MinterPublicKey == "" {
		return fmt.Errorf("MINTER_PUBLIC_KEY is required")
	}
	if err := checkHexKey(c.MinterPublicKey); err != nil {
		return fmt.Errorf("MINTER_PUBLIC_KEY: %w", err)
	}
	if c.LedgerPrivateKey != "" {
		if err := checkHexKey(c.LedgerPrivateKey); err != nil {
			return fmt.Errorf("NOSTR_PRIVATE_KEY: %w", err)
		}
	}
	if len(c.Relays) == 0 {
		return fmt.Errorf("NOSTR_RELAYS is required")
	}
	for _, url := range c.Relays {
		if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
			return fmt.Errorf("relay URL %q must use ws:// or wss://", url)
		}
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	if c.RepublishInterval <= 0 {
		return fmt.Errorf("REPUBLISH_INTERVAL_MS must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q not one of debug, info, warn, error", c.LogLevel)
	}

	return nil
}

func checkHexKey(key string) error {
	if len(key) != 64 {
		return fmt.Errorf("must be 64 hex characters, got %d", len(key))
	}
	for _, r := range key {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return fmt.Errorf("invalid hex character %q", r)
		}
	}
	return nil
}

func splitRelays(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
