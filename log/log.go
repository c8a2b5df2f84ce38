/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package log

import (
	"os"
	"sync"

	"github.com/parley-im/parley/util/runqueue"
)

// Logger represents a common logger interface.
type Logger interface {
	// Debugf uses fmt.Sprintf to log a `debug` templated message.
	Debugf(msg string, args ...interface{})

	// Debugw writes a 'debug' message to configured logger with some additional context.
	Debugw(msg string, keysAndValues ...interface{})

	// Infof uses fmt.Sprintf to log an `info` templated message.
	Infof(msg string, args ...interface{})

	// Infow writes a 'info' message to configured logger with some additional context.
	Infow(msg string, keysAndValues ...interface{})

	// Warnf uses fmt.Sprintf to log a `warn` templated message.
	Warnf(msg string, args ...interface{})

	// Warnw writes a 'warning' message to configured logger with some additional context.
	Warnw(msg string, keysAndValues ...interface{})

	// Errorf uses fmt.Sprintf to log an `error` templated message.
	Errorf(msg string, args ...interface{})

	// Errorw writes an 'error' message to configured logger with some additional context.
	Errorw(msg string, keysAndValues ...interface{})

	// Fatalf uses fmt.Sprintf to log a `fatal` templated message.
	Fatalf(msg string, args ...interface{})

	// Fatalw writes a 'fatal' message to configured logger with some additional context.
	Fatalw(msg string, keysAndValues ...interface{})
}

type disabledLogger struct{}

func (l *disabledLogger) Debugw(_ string, _ ...interface{}) {}
func (l *disabledLogger) Debugf(_ string, _ ...interface{}) {}
func (l *disabledLogger) Infow(_ string, _ ...interface{})  {}
func (l *disabledLogger) Infof(_ string, _ ...interface{})  {}
func (l *disabledLogger) Warnw(_ string, _ ...interface{})  {}
func (l *disabledLogger) Warnf(_ string, _ ...interface{})  {}
func (l *disabledLogger) Errorw(_ string, _ ...interface{}) {}
func (l *disabledLogger) Errorf(_ string, _ ...interface{}) {}
func (l *disabledLogger) Fatalw(_ string, _ ...interface{}) {}
func (l *disabledLogger) Fatalf(_ string, _ ...interface{}) {}

var osExit = func() { os.Exit(-1) }

// Debugf uses fmt.Sprintf to log a `debug` templated message.
func Debugf(msg string, args ...interface{}) {
	if getLevel() > DebugLevel {
		return
	}
	logMessagef(DebugLevel, msg, args...)
}

// Debugw writes a 'debug' message to configured logger with some additional context.
func Debugw(msg string, keysAndValues ...interface{}) {
	if getLevel() > DebugLevel {
		return
	}
	logMessagew(DebugLevel, msg, keysAndValues...)
}

// Infof uses fmt.Sprintf to log an `info` templated message.
func Infof(msg string, args ...interface{}) {
	if getLevel() > InfoLevel {
		return
	}
	logMessagef(InfoLevel, msg, args...)
}

// Infow writes a 'info' message to configured logger with some additional context.
func Infow(msg string, keysAndValues ...interface{}) {
	if getLevel() > InfoLevel {
		return
	}
	logMessagew(InfoLevel, msg, keysAndValues...)
}

// Warnf uses fmt.Sprintf to log a `warn` templated message.
func Warnf(msg string, args ...interface{}) {
	if getLevel() > WarningLevel {
		return
	}
	logMessagef(WarningLevel, msg, args...)
}

// Warnw writes a 'warning' message to configured logger with some additional context.
func Warnw(msg string, keysAndValues ...interface{}) {
	if getLevel() > WarningLevel {
		return
	}
	logMessagew(WarningLevel, msg, keysAndValues...)
}

// Errorf uses fmt.Sprintf to log an `error` templated message.
func Errorf(msg string, args ...interface{}) {
	if getLevel() > ErrorLevel {
		return
	}
	logMessagef(ErrorLevel, msg, args...)
}

// Errorw writes an 'error' message to configured logger with some additional context.
func Errorw(msg string, keysAndValues ...interface{}) {
	if getLevel() > ErrorLevel {
		return
	}
	logMessagew(ErrorLevel, msg, keysAndValues...)
}

// Error logs an 'error' value.
func Error(err error) {
	if getLevel() > ErrorLevel {
		return
	}
	logMessagef(ErrorLevel, "%v", err)
}

// Fatalf uses fmt.Sprintf to log a `fatal` templated message.
// Application will terminate after logging.
func Fatalf(msg string, args ...interface{}) {
	if getLevel() > FatalLevel {
		return
	}
	logMessagef(FatalLevel, msg, args...)
}

var (
	mtx   sync.RWMutex
	inst  Logger
	level Level
	rq    *runqueue.RunQueue
)

// Disabled stores a disabled logger instance.
var Disabled Logger = &disabledLogger{}

func init() {
	inst = Disabled
	level = OffLevel
}

// Set sets the global logger instance.
func Set(lg Logger, lv Level) {
	mtx.Lock()
	rq = runqueue.New("logger", nil)
	inst = lg
	level = lv
	mtx.Unlock()
}

// Close flushes every pending log message and restores the disabled logger.
func Close() {
	mtx.Lock()
	q := rq
	rq = nil
	level = OffLevel
	mtx.Unlock()

	if q != nil {
		ch := make(chan struct{})
		q.Stop(func() { close(ch) })
		<-ch
	}
	mtx.Lock()
	inst = Disabled
	mtx.Unlock()
}

func logMessagef(level Level, msg string, args ...interface{}) {
	q := getQueue()
	if q == nil {
		return
	}
	done := make(chan struct{})
	q.Run(func() {
		defer close(done)
		inst := getInstance()
		switch level {
		case DebugLevel:
			inst.Debugf(msg, args...)
		case InfoLevel:
			inst.Infof(msg, args...)
		case WarningLevel:
			inst.Warnf(msg, args...)
		case ErrorLevel:
			inst.Errorf(msg, args...)
		case FatalLevel:
			inst.Fatalf(msg, args...)
			osExit()
		}
	})
	if level == FatalLevel {
		<-done
	}
}

func logMessagew(level Level, msg string, keysAndValues ...interface{}) {
	q := getQueue()
	if q == nil {
		return
	}
	q.Run(func() {
		inst := getInstance()
		switch level {
		case DebugLevel:
			inst.Debugw(msg, keysAndValues...)
		case InfoLevel:
			inst.Infow(msg, keysAndValues...)
		case WarningLevel:
			inst.Warnw(msg, keysAndValues...)
		case ErrorLevel:
			inst.Errorw(msg, keysAndValues...)
		case FatalLevel:
			inst.Fatalw(msg, keysAndValues...)
			osExit()
		}
	})
}

func getInstance() Logger {
	mtx.RLock()
	l := inst
	mtx.RUnlock()
	return l
}

func getQueue() *runqueue.RunQueue {
	mtx.RLock()
	q := rq
	mtx.RUnlock()
	return q
}

func getLevel() Level {
	mtx.RLock()
	lv := level
	mtx.RUnlock()
	return lv
}
