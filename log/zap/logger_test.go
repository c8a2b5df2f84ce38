/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package zap

import (
	"testing"

	"github.com/parley-im/parley/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lg := NewLoggerWithCore(core)

	lg.Debugf("hidden %d", 1)
	lg.Infof("connected as %s", "romeo@montague.lit")
	lg.Warnw("slow server", "rtt", 3)
	lg.Errorf("boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	require.Equal(t, "connected as romeo@montague.lit", entries[0].Message)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, int64(3), entries[1].ContextMap()["rtt"])
}

func TestZapLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, zapLevel(log.DebugLevel))
	require.Equal(t, zapcore.WarnLevel, zapLevel(log.WarningLevel))
	require.True(t, zapLevel(log.OffLevel) > zapcore.FatalLevel)
}

func TestNewLogger(t *testing.T) {
	lg, err := NewLogger(&log.Config{Level: log.InfoLevel, LogPath: t.TempDir() + "/logs/parley.log"})
	require.Nil(t, err)
	lg.Infof("hello")
	_ = lg.Sync()
}
