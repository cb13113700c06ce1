package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewAcceptsEmptyOutputPaths(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestForWidgetAddsField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.Named("widget").ForWidget("tiny-sandbox-abcde").Info("rendered")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "widget", entry.LoggerName)
	assert.Equal(t, "tiny-sandbox-abcde", entry.ContextMap()["widget"])
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	assert.NotPanics(t, func() {
		logger.ForWidget("x").Error("ignored")
	})
}

func TestForPageAndRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := &Logger{Logger: zap.New(core)}

	logger.ForPage("page-1").Info("loaded", Request("req-9"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "page-1", fields[FieldPage])
	assert.Equal(t, "req-9", fields[FieldRequest])
}

func TestConfigs(t *testing.T) {
	prod := DefaultConfig()
	assert.True(t, prod.Sampling)
	assert.False(t, prod.Development)
	assert.Equal(t, "info", prod.Level)

	dev := DevelopmentConfig()
	assert.False(t, dev.Sampling)
	assert.True(t, dev.Development)
	assert.Equal(t, "debug", dev.Level)
}

func TestNewBuildsBothEncodings(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), DevelopmentConfig()} {
		cfg.OutputPaths = []string{filepath.Join(t.TempDir(), "out.log")}
		logger, err := New(cfg)
		require.NoError(t, err)
		logger.Info("started")
		require.NoError(t, logger.Flush())
	}
}

func TestProductionLinesCarryService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	cfg := DefaultConfig()
	cfg.OutputPaths = []string{path}
	logger, err := New(cfg)
	require.NoError(t, err)

	logger.ForWidget("tiny-sandbox-abcde").Info("rendered")
	require.NoError(t, logger.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"service":"tiny-sandbox"`)
	assert.Contains(t, line, `"widget":"tiny-sandbox-abcde"`)
	assert.Contains(t, line, `"message":"rendered"`)
	assert.Contains(t, line, `"timestamp":`)
}

func TestNopFlush(t *testing.T) {
	assert.NoError(t, NewNop().Flush())
}
