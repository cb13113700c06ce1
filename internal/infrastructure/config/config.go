package config

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Sandbox   SandboxConfig
	Session   SessionConfig
	Library   LibraryConfig
	Fetch     FetchConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// SandboxConfig holds widget identity, debounce and isolated runtime settings.
type SandboxConfig struct {
	IDPrefix        string        `envconfig:"SANDBOX_ID_PREFIX" default:"tiny-sandbox-"`
	IDLength        int           `envconfig:"SANDBOX_ID_LENGTH" default:"5"`
	IDAlphabet      string        `envconfig:"SANDBOX_ID_ALPHABET" default:"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"`
	Debounce        time.Duration `envconfig:"SANDBOX_DEBOUNCE" default:"500ms"`
	ScriptTimeout   time.Duration `envconfig:"SANDBOX_SCRIPT_TIMEOUT" default:"0s"`
	MaxCallStack    int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	MaxConsoleLines int           `envconfig:"SANDBOX_MAX_CONSOLE_LINES" default:"1000"`
	SyntaxErrorText string        `envconfig:"SANDBOX_SYNTAX_ERROR_TEXT" default:"Syntax error!"`
}

// SessionConfig holds host page session settings.
type SessionConfig struct {
	TTL             time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	CleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"5m"`
	MaxPageBytes    int           `envconfig:"SESSION_MAX_PAGE_BYTES" default:"10485760"`
}

// LibraryConfig points at a directory of host pages served by name.
type LibraryConfig struct {
	Dir     string `envconfig:"PAGES_DIR" default:""`
	Pattern string `envconfig:"PAGES_PATTERN" default:"**/*.html"`
}

// FetchConfig holds remote page import settings.
type FetchConfig struct {
	Timeout time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	Retries int           `envconfig:"FETCH_RETRIES" default:"3"`

	// A host is refused for BreakerCooldown after BreakerFailures consecutive failures.
	BreakerFailures int           `envconfig:"FETCH_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"FETCH_BREAKER_COOLDOWN" default:"30s"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects settings the sandbox cannot work with.
func (c *Config) Validate() error {
	if c.Sandbox.IDLength <= 0 {
		return fmt.Errorf("invalid config: SANDBOX_ID_LENGTH must be positive, got %d", c.Sandbox.IDLength)
	}
	if n := len(c.Sandbox.IDAlphabet); n < 2 || n > 256 {
		return fmt.Errorf("invalid config: SANDBOX_ID_ALPHABET needs 2 to 256 characters, got %d", n)
	}
	for i := 0; i < len(c.Sandbox.IDAlphabet); i++ {
		if c.Sandbox.IDAlphabet[i] >= utf8.RuneSelf {
			return fmt.Errorf("invalid config: SANDBOX_ID_ALPHABET must be ASCII")
		}
	}
	if c.Sandbox.Debounce < 0 {
		return fmt.Errorf("invalid config: SANDBOX_DEBOUNCE must not be negative")
	}
	if c.Sandbox.MaxCallStack <= 0 {
		return fmt.Errorf("invalid config: SANDBOX_MAX_CALL_STACK must be positive, got %d", c.Sandbox.MaxCallStack)
	}
	if c.Sandbox.MaxConsoleLines < 0 {
		return fmt.Errorf("invalid config: SANDBOX_MAX_CONSOLE_LINES must not be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Sandbox: SandboxConfig{
			IDPrefix:        "tiny-sandbox-",
			IDLength:        5,
			IDAlphabet:      "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz",
			Debounce:        500 * time.Millisecond,
			ScriptTimeout:   0,
			MaxCallStack:    1024,
			MaxConsoleLines: 1000,
			SyntaxErrorText: "Syntax error!",
		},
		Session: SessionConfig{
			TTL:             time.Hour,
			CleanupInterval: 5 * time.Minute,
			MaxPageBytes:    10 * 1024 * 1024,
		},
		Library: LibraryConfig{
			Pattern: "**/*.html",
		},
		Fetch: FetchConfig{
			Timeout:         30 * time.Second,
			Retries:         3,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
