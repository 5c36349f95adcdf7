package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerRoundTripsThroughGetLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pipeline.log")
	l := NewIsolatedLogger(path)

	l.Info("optimizer", "first", map[string]interface{}{"chunks": 3})
	l.Warn("generator", "second", nil)
	l.Error("generator", "third", map[string]interface{}{"error": "boom"})
	require.NoError(t, l.Sync())

	all, err := l.GetLogs(LogFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Message)
	assert.Equal(t, "generator", all[0].Module)
	assert.NotEmpty(t, all[0].Id)

	warns, err := l.GetLogs(LogFilter{Level: "warn", Limit: 10})
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Equal(t, "second", warns[0].Message)

	byModule, err := l.GetLogs(LogFilter{Module: "generator"})
	require.NoError(t, err)
	assert.Len(t, byModule, 2)

	page, err := l.GetLogs(LogFilter{Limit: 1, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestNopLoggerHasNoLogs(t *testing.T) {
	l := NewNopLogger()
	l.Info("m", "ignored", nil)

	logs, err := l.GetLogs(LogFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
