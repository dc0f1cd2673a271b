// Package observability provides structured logging and metrics for the
// detection loop.
package observability

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cybersentinel/detection-loop/internal/config"
)

// Logger wraps a zap.Logger with fluent helpers scoped to this domain.
type Logger struct {
	z *zap.Logger
}

// NewLogger builds a Logger from observability configuration.
func NewLogger(cfg config.ObservabilityConfig) (*Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(cfg.LogLevel); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	z, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// WithComponent tags subsequent log lines with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.with(zap.String("component", name))
}

// WithRuleID tags subsequent log lines with a rule ID.
func (l *Logger) WithRuleID(ruleID string) *Logger {
	return l.with(zap.String("rule_id", ruleID))
}

// WithCycleID tags subsequent log lines with a cycle ID.
func (l *Logger) WithCycleID(cycleID string) *Logger {
	return l.with(zap.String("cycle_id", cycleID))
}

// WithEngine tags subsequent log lines with an engine type.
func (l *Logger) WithEngine(engineType string) *Logger {
	return l.with(zap.String("engine_type", engineType))
}

// WithDuration tags subsequent log lines with an elapsed duration.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.with(zap.Duration("duration", d))
}

// WithError tags subsequent log lines with an error.
func (l *Logger) WithError(err error) *Logger {
	return l.with(zap.Error(err))
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...zap.Field) { l.z.Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...zap.Field) { l.z.Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
