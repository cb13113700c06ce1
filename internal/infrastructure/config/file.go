package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors Config for YAML and TOML files. Unset keys leave the loaded value
// alone, so every field is optional.
type fileConfig struct {
	Server struct {
		Port string `yaml:"port" toml:"port"`
		Host string `yaml:"host" toml:"host"`
	} `yaml:"server" toml:"server"`

	Logging struct {
		Level       string `yaml:"level" toml:"level"`
		Development *bool  `yaml:"development" toml:"development"`
	} `yaml:"logging" toml:"logging"`

	Sandbox struct {
		IDPrefix        string `yaml:"id_prefix" toml:"id_prefix"`
		IDLength        *int   `yaml:"id_length" toml:"id_length"`
		IDAlphabet      string `yaml:"id_alphabet" toml:"id_alphabet"`
		Debounce        string `yaml:"debounce" toml:"debounce"`
		ScriptTimeout   string `yaml:"script_timeout" toml:"script_timeout"`
		MaxCallStack    *int   `yaml:"max_call_stack" toml:"max_call_stack"`
		MaxConsoleLines *int   `yaml:"max_console_lines" toml:"max_console_lines"`
		SyntaxErrorText string `yaml:"syntax_error_text" toml:"syntax_error_text"`
	} `yaml:"sandbox" toml:"sandbox"`

	Session struct {
		TTL             string `yaml:"ttl" toml:"ttl"`
		CleanupInterval string `yaml:"cleanup_interval" toml:"cleanup_interval"`
		MaxPageBytes    *int   `yaml:"max_page_bytes" toml:"max_page_bytes"`
	} `yaml:"session" toml:"session"`

	Library struct {
		Dir     string `yaml:"dir" toml:"dir"`
		Pattern string `yaml:"pattern" toml:"pattern"`
	} `yaml:"library" toml:"library"`

	Fetch struct {
		Timeout         string `yaml:"timeout" toml:"timeout"`
		Retries         *int   `yaml:"retries" toml:"retries"`
		BreakerFailures *int   `yaml:"breaker_failures" toml:"breaker_failures"`
		BreakerCooldown string `yaml:"breaker_cooldown" toml:"breaker_cooldown"`
	} `yaml:"fetch" toml:"fetch"`

	RateLimit struct {
		RequestsPerSecond *int  `yaml:"requests_per_second" toml:"requests_per_second"`
		Burst             *int  `yaml:"burst" toml:"burst"`
		Enabled           *bool `yaml:"enabled" toml:"enabled"`
	} `yaml:"rate_limit" toml:"rate_limit"`
}

// LoadFile loads the environment configuration and overlays a YAML (.yaml, .yml) or TOML
// (.toml) file on top of it. Values in the file win over the environment.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	case ".toml":
		err = toml.Unmarshal(data, &fc)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := fc.apply(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	setString(&cfg.Server.Port, fc.Server.Port)
	setString(&cfg.Server.Host, fc.Server.Host)

	setString(&cfg.Logging.Level, fc.Logging.Level)
	setBool(&cfg.Logging.Development, fc.Logging.Development)

	setString(&cfg.Sandbox.IDPrefix, fc.Sandbox.IDPrefix)
	setInt(&cfg.Sandbox.IDLength, fc.Sandbox.IDLength)
	setString(&cfg.Sandbox.IDAlphabet, fc.Sandbox.IDAlphabet)
	setInt(&cfg.Sandbox.MaxCallStack, fc.Sandbox.MaxCallStack)
	setInt(&cfg.Sandbox.MaxConsoleLines, fc.Sandbox.MaxConsoleLines)
	setString(&cfg.Sandbox.SyntaxErrorText, fc.Sandbox.SyntaxErrorText)

	setInt(&cfg.Session.MaxPageBytes, fc.Session.MaxPageBytes)

	setString(&cfg.Library.Dir, fc.Library.Dir)
	setString(&cfg.Library.Pattern, fc.Library.Pattern)

	setInt(&cfg.Fetch.Retries, fc.Fetch.Retries)
	setInt(&cfg.Fetch.BreakerFailures, fc.Fetch.BreakerFailures)

	setInt(&cfg.RateLimit.RequestsPerSecond, fc.RateLimit.RequestsPerSecond)
	setInt(&cfg.RateLimit.Burst, fc.RateLimit.Burst)
	setBool(&cfg.RateLimit.Enabled, fc.RateLimit.Enabled)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"sandbox.debounce", fc.Sandbox.Debounce, &cfg.Sandbox.Debounce},
		{"sandbox.script_timeout", fc.Sandbox.ScriptTimeout, &cfg.Sandbox.ScriptTimeout},
		{"session.ttl", fc.Session.TTL, &cfg.Session.TTL},
		{"session.cleanup_interval", fc.Session.CleanupInterval, &cfg.Session.CleanupInterval},
		{"fetch.timeout", fc.Fetch.Timeout, &cfg.Fetch.Timeout},
		{"fetch.breaker_cooldown", fc.Fetch.BreakerCooldown, &cfg.Fetch.BreakerCooldown},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
