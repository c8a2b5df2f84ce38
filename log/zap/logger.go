/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package zap

import (
	"os"
	"path/filepath"

	"github.com/parley-im/parley/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger represents a zap logger implementation.
type Logger struct {
	lg       *zap.Logger
	sgLogger *zap.SugaredLogger
}

// NewLogger creates an initialized zap logger instance.
// Console output goes to stderr so it does not mix with the interactive prompt.
func NewLogger(cfg *log.Config) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel(cfg.Level))
	zapCfg.Encoding = "console"
	zapCfg.DisableCaller = true
	zapCfg.DisableStacktrace = true
	zapCfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	outputPaths := []string{"stderr"}
	if len(cfg.LogPath) > 0 {
		if err := os.MkdirAll(filepath.Dir(cfg.LogPath), os.ModePerm); err != nil {
			return nil, err
		}
		outputPaths = append(outputPaths, cfg.LogPath)
	}
	zapCfg.OutputPaths = outputPaths

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{
		lg:       logger,
		sgLogger: logger.Sugar(),
	}, nil
}

// NewLoggerWithCore wraps an already built zap core.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	logger := zap.New(core)
	return &Logger{
		lg:       logger,
		sgLogger: logger.Sugar(),
	}
}

// Debugf uses fmt.Sprintf to log a `debug` templated message.
func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.sgLogger.Debugf(msg, args...)
}

// Debugw writes a 'debug' message to configured logger with some additional context.
func (l *Logger) Debugw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Debugw(msg, keysAndValues...)
}

// Infof uses fmt.Sprintf to log an `info` templated message.
func (l *Logger) Infof(msg string, args ...interface{}) {
	l.sgLogger.Infof(msg, args...)
}

// Infow writes a 'info' message to configured logger with some additional context.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Infow(msg, keysAndValues...)
}

// Warnf uses fmt.Sprintf to log a `warn` templated message.
func (l *Logger) Warnf(msg string, args ...interface{}) {
	l.sgLogger.Warnf(msg, args...)
}

// Warnw writes a 'warning' message to configured logger with some additional context.
func (l *Logger) Warnw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Warnw(msg, keysAndValues...)
}

// Errorf uses fmt.Sprintf to log an `error` templated message.
func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.sgLogger.Errorf(msg, args...)
	_ = l.lg.Sync()
}

// Errorw writes an 'error' message to configured logger with some additional context.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Errorw(msg, keysAndValues...)
	_ = l.lg.Sync()
}

// Fatalf uses fmt.Sprintf to log a `fatal` templated message.
func (l *Logger) Fatalf(msg string, args ...interface{}) {
	l.sgLogger.Fatalf(msg, args...)
}

// Fatalw writes a 'fatal' message to configured logger with some additional context.
func (l *Logger) Fatalw(msg string, keysAndValues ...interface{}) {
	l.sgLogger.Fatalw(msg, keysAndValues...)
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.lg.Sync()
}

func zapLevel(lv log.Level) zapcore.Level {
	switch lv {
	case log.DebugLevel:
		return zapcore.DebugLevel
	case log.InfoLevel:
		return zapcore.InfoLevel
	case log.WarningLevel:
		return zapcore.WarnLevel
	case log.ErrorLevel:
		return zapcore.ErrorLevel
	case log.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.FatalLevel + 1
	}
}
