/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package log

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *testLogger) add(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *testLogger) Debugf(msg string, args ...interface{}) { l.add("DBG", fmt.Sprintf(msg, args...)) }
func (l *testLogger) Debugw(msg string, kv ...interface{})   { l.add("DBG", fmt.Sprint(msg, kv)) }
func (l *testLogger) Infof(msg string, args ...interface{})  { l.add("INF", fmt.Sprintf(msg, args...)) }
func (l *testLogger) Infow(msg string, kv ...interface{})    { l.add("INF", fmt.Sprint(msg, kv)) }
func (l *testLogger) Warnf(msg string, args ...interface{})  { l.add("WRN", fmt.Sprintf(msg, args...)) }
func (l *testLogger) Warnw(msg string, kv ...interface{})    { l.add("WRN", fmt.Sprint(msg, kv)) }
func (l *testLogger) Errorf(msg string, args ...interface{}) { l.add("ERR", fmt.Sprintf(msg, args...)) }
func (l *testLogger) Errorw(msg string, kv ...interface{})   { l.add("ERR", fmt.Sprint(msg, kv)) }
func (l *testLogger) Fatalf(msg string, args ...interface{}) { l.add("FTL", fmt.Sprintf(msg, args...)) }
func (l *testLogger) Fatalw(msg string, kv ...interface{})   { l.add("FTL", fmt.Sprint(msg, kv)) }

func TestLogLevelFiltering(t *testing.T) {
	lg := &testLogger{}
	Set(lg, WarningLevel)

	Debugf("debug %d", 1)
	Infof("info %d", 2)
	Warnf("warn %d", 3)
	Errorf("error %d", 4)
	Error(errors.New("failure"))
	Close()

	require.Equal(t, []string{"WRN: warn 3", "ERR: error 4", "ERR: failure"}, lg.lines)

	// closed logger discards messages
	Errorf("lost")
	require.Len(t, lg.lines, 3)
}

func TestLogFatal(t *testing.T) {
	var exited bool
	orig := osExit
	osExit = func() { exited = true }
	defer func() { osExit = orig }()

	lg := &testLogger{}
	Set(lg, DebugLevel)
	Fatalf("bye")
	Close()

	require.True(t, exited)
	require.Equal(t, []string{"FTL: bye"}, lg.lines)
}

func TestParseLevel(t *testing.T) {
	for name, lv := range map[string]Level{
		"debug": DebugLevel, "": InfoLevel, "INFO": InfoLevel,
		"warning": WarningLevel, "error": ErrorLevel, "fatal": FatalLevel, "off": OffLevel,
	} {
		got, err := ParseLevel(name)
		require.Nil(t, err)
		require.Equal(t, lv, got)
	}
	_, err := ParseLevel("verbose")
	require.NotNil(t, err)
	require.Equal(t, "warning", WarningLevel.String())
}
