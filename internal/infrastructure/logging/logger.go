package logging

import (
	"errors"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field names shared by every component, so one widget, page or request can be followed
// across the session, sandbox and transport logs.
const (
	FieldService = "service"
	FieldWidget  = "widget"
	FieldPage    = "page"
	FieldRequest = "request_id"

	// ServiceName tags every line the server writes.
	ServiceName = "tiny-sandbox"
)

// Logger wraps zap.Logger with the fields the playground host logs on every line.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string
	// Sampling keeps the first 100 identical lines per second and every 100th after that.
	// A script logging in a tight loop cannot flood the output.
	Sampling    bool
}

// DefaultConfig returns the production configuration: JSON lines, sampled.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		OutputPaths: []string{"stdout"},
		Sampling:    true,
	}
}

// DevelopmentConfig returns colored console output at debug level, unsampled.
func DevelopmentConfig() Config {
	return Config{
		Level:       "debug",
		Development: true,
		OutputPaths: []string{"stdout"},
	}
}

// New creates a logger. Every line carries the service name.
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          "json",
		EncoderConfig:     productionEncoder(),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
		InitialFields:     map[string]interface{}{FieldService: ServiceName},
	}
	if cfg.Development {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = developmentEncoder()
	}
	if cfg.Sampling {
		zapCfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger}, nil
}

// NewDefault creates a production logger, or a no-op one if stdout cannot be opened.
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		return NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything. Tests and optional collaborators use it.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// With returns a child logger carrying the given fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// ForWidget returns a child logger tagged with a widget identity.
func (l *Logger) ForWidget(id string) *Logger {
	return l.With(zap.String(FieldWidget, id))
}

// ForPage returns a child logger tagged with a page session.
func (l *Logger) ForPage(id string) *Logger {
	return l.With(zap.String(FieldPage, id))
}

// Request returns the field naming an HTTP request.
func Request(id string) zap.Field {
	return zap.String(FieldRequest, id)
}

// Flush writes buffered lines. Console outputs cannot be fsynced; those errors are ignored.
func (l *Logger) Flush() error {
	err := l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func productionEncoder() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

func developmentEncoder() zapcore.EncoderConfig {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return enc
}
