package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// root logger
var log atomic.Pointer[Logger]

// ValidLogLevels is the set of log level names that configuration
// validation accepts.
var ValidLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// LoggingConfig is the subset of configuration NewComponentLoggerFromConfig needs.
// pkg/config.LoggingConfig satisfies this interface.
type LoggingConfig interface {
	GetComponentLevel(component string) string
	GetDefaultLevel() string
	IsDevelopment() bool
}

// Logger wraps zap.SugaredLogger to provide a consistent logging interface across the project.
// It provides both structured logging (with fields) and printf-style logging methods.
type Logger struct {
	*zap.SugaredLogger
	level     zap.AtomicLevel
	component string
}

// NewLogger creates a new logger with the specified configuration.
// level can be "debug", "info", "warn", "error".
// development mode enables stack traces and uses console encoder.
func NewLogger(level string, development bool) (*Logger, error) {
	return newLogger(level, development, nil)
}

// NewRotatingLogger creates a logger that writes JSON lines to path,
// rotated via lumberjack once it exceeds maxSizeMB.
func NewRotatingLogger(level string, path string, maxSizeMB, maxBackups, maxAgeDays int) (*Logger, error) {
	ws := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	})
	return newLogger(level, false, ws)
}

func newLogger(level string, development bool, fileSink zapcore.WriteSyncer) (*Logger, error) {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	atomicLevel := zap.NewAtomicLevelAt(zapLevel)
	config.Level = atomicLevel

	var zapLogger *zap.Logger
	if fileSink != nil {
		encoder := zapcore.NewJSONEncoder(config.EncoderConfig)
		core := zapcore.NewCore(encoder, fileSink, atomicLevel)
		zapLogger = zap.New(core)
	} else {
		zapLogger, err = config.Build()
		if err != nil {
			return nil, err
		}
	}

	return &Logger{SugaredLogger: zapLogger.Sugar(), level: atomicLevel}, nil
}

// NewComponentLogger builds a logger for a named component, panicking on an invalid level
// (component loggers are constructed once at startup from static configuration).
func NewComponentLogger(component, level string, development bool) *Logger {
	l, err := NewLogger(level, development)
	if err != nil {
		panic(fmt.Sprintf("logger: invalid level %q for component %q: %v", level, component, err))
	}
	return l.WithComponent(component)
}

// NewComponentLoggerFromConfig builds a component logger, taking the level from
// cfg (falling back to "info"/production when cfg is nil).
func NewComponentLoggerFromConfig(component string, cfg LoggingConfig) *Logger {
	level := "info"
	development := false
	if cfg != nil {
		level = cfg.GetComponentLevel(component)
		development = cfg.IsDevelopment()
	}
	if level == "" {
		level = "info"
	}
	return NewComponentLogger(component, level, development)
}

// NewNopLogger creates a no-op logger that discards all logs.
// Useful for testing.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar(), level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
}

// WithComponent creates a child logger with a component name field, sharing the
// parent's atomic level so SetLevel on either affects both.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		SugaredLogger: l.With("component", component),
		level:         l.level,
		component:     component,
	}
}

// GetComponent returns the component name this logger was tagged with, or "" if none.
func (l *Logger) GetComponent() string {
	return l.component
}

// GetLevel returns the current log level as a string.
func (l *Logger) GetLevel() string {
	return l.level.Level().String()
}

// SetLevel changes the logger's level in place. Invalid levels are rejected
// and leave the current level unchanged.
func (l *Logger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.level.SetLevel(parsed)
	return nil
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

func GetDefaultLogger() *Logger {
	l := log.Load()
	if l != nil {
		return l
	}
	// default level: debug
	zapLogger, err := NewLogger("debug", true)
	if err != nil {
		panic(err)
	}
	log.Store(zapLogger)
	return log.Load()
}
