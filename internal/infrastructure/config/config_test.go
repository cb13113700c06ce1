package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Sandbox config
	assert.Equal(t, "tiny-sandbox-", cfg.Sandbox.IDPrefix)
	assert.Equal(t, 5, cfg.Sandbox.IDLength)
	assert.Len(t, cfg.Sandbox.IDAlphabet, 52)
	assert.Equal(t, 500*time.Millisecond, cfg.Sandbox.Debounce)
	assert.Zero(t, cfg.Sandbox.ScriptTimeout)
	assert.Equal(t, 1024, cfg.Sandbox.MaxCallStack)
	assert.Equal(t, 1000, cfg.Sandbox.MaxConsoleLines)
	assert.Equal(t, "Syntax error!", cfg.Sandbox.SyntaxErrorText)

	// Session config
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5*time.Minute, cfg.Session.CleanupInterval)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                      "9000",
		"HOST":                      "127.0.0.1",
		"LOG_LEVEL":                 "debug",
		"LOG_DEV":                   "true",
		"SANDBOX_ID_PREFIX":         "pg-",
		"SANDBOX_ID_LENGTH":         "8",
		"SANDBOX_DEBOUNCE":          "250ms",
		"SANDBOX_SCRIPT_TIMEOUT":    "2s",
		"SANDBOX_MAX_CONSOLE_LINES": "0",
		"SESSION_TTL":               "30m",
		"PAGES_DIR":                 "/srv/pages",
		"FETCH_RETRIES":             "1",
		"RATE_LIMIT_RPS":            "500",
		"RATE_LIMIT_ENABLED":        "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "pg-", cfg.Sandbox.IDPrefix)
	assert.Equal(t, 8, cfg.Sandbox.IDLength)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Debounce)
	assert.Equal(t, 2*time.Second, cfg.Sandbox.ScriptTimeout)
	assert.Zero(t, cfg.Sandbox.MaxConsoleLines)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.Equal(t, "/srv/pages", cfg.Library.Dir)
	assert.Equal(t, 1, cfg.Fetch.Retries)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)

	// Untouched values keep their defaults
	assert.Equal(t, "**/*.html", cfg.Library.Pattern)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
}

func TestLoadRejectsInvalidSandboxConfig(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero id length", key: "SANDBOX_ID_LENGTH", value: "0"},
		{name: "single letter alphabet", key: "SANDBOX_ID_ALPHABET", value: "a"},
		{name: "negative debounce", key: "SANDBOX_DEBOUNCE", value: "-1s"},
		{name: "unparseable duration", key: "SANDBOX_DEBOUNCE", value: "soon"},
		{name: "zero call stack", key: "SANDBOX_MAX_CALL_STACK", value: "0"},
		{name: "negative call stack", key: "SANDBOX_MAX_CALL_STACK", value: "-5"},
		{name: "non-ascii alphabet", key: "SANDBOX_ID_ALPHABET", value: "abcé"},
		{name: "oversized alphabet", key: "SANDBOX_ID_ALPHABET", value: strings.Repeat("ab", 129)},
		{name: "negative console cap", key: "SANDBOX_MAX_CONSOLE_LINES", value: "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault falls back instead of failing
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}
