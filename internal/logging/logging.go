// Package logging builds the leveled structured loggers dbsyncd's
// components use (error/warn/info/debug), adapted from
// Icinga-icinga-go-library/logging's level-string-to-*zap.Logger
// construction.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging owns the root *zap.Logger and hands out one named sub-logger per
// component, the way Icinga-icinga-go-library's logging.Logging does.
type Logging struct {
	root *zap.Logger
}

// New builds a Logging from a textual level (one of "debug", "info",
// "warn", "error"), defaulting to "info" for an empty string. An unknown
// level is an error.
func New(level string) (*Logging, error) {
	zapLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	root, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logging{root: root}, nil
}

// GetChildLogger returns a logger tagged with the given component name,
// e.g. "worker", "differ", "supervisor".
func (l *Logging) GetChildLogger(name string) *zap.SugaredLogger {
	return l.root.Named(name).Sugar()
}

// Sync flushes any buffered log entries.
func (l *Logging) Sync() error {
	return l.root.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch level {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
