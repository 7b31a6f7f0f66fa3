package logger

import (
	"os"
	"path/filepath"
	"testing"

	"restaurant-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel(""))
}

func TestNewLoggerStdout(t *testing.T) {
	log, err := NewLogger(config.LoggerConfig{Format: "console", Color: true})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "api.log")

	log, err := NewLogger(config.LoggerConfig{Output: "file", FilePath: path, Level: "debug"})
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	_, statErr := os.Stat(filepath.Dir(path))
	assert.NoError(t, statErr)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
