package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerToFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "logs", "datapilot.log")
	cfg.LogLevel = "warn"

	logger, err := NewLogger(cfg, false, true)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger.Warn("completion loop hit ceiling")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "completion loop hit ceiling")
}

func TestNewLoggerVerbose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "datapilot.log")

	logger, err := NewLogger(cfg, true, true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "chatty"

	_, err := NewLogger(cfg, false, false)
	assert.Error(t, err)
}
