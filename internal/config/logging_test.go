package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/veil/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected config.LogLevel
	}{
		{"off", config.LogLevelOff},
		{"NONE", config.LogLevelOff},
		{"error", config.LogLevelError},
		{"info", config.LogLevelInfo},
		{"  Debug ", config.LogLevelDebug},
		{"warn", config.LogLevelError},
		{"", config.LogLevelError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			level := config.ParseLogLevel(tt.input)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, level, config.ParseLogLevel(level.String()), "String round-trips")
		})
	}
}

func TestNewLogger_WritesJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "veil.log")
	logger, closeLog, err := config.NewLogger(config.LogLevelInfo, path)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("decryption signature created")
	logger.Error("relayer call failed")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "decryption signature created", entry["msg"])
	assert.Equal(t, "veil", entry["logger"])
	assert.Contains(t, entry, "ts")
}

func TestNewLogger_Off(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "veil.log")
	for _, tc := range []struct {
		level config.LogLevel
		path  string
	}{
		{config.LogLevelOff, path},
		{config.LogLevelDebug, ""},
	} {
		logger, closeLog, err := config.NewLogger(tc.level, tc.path)
		require.NoError(t, err)
		logger.Error("dropped")
		require.NoError(t, closeLog())
	}

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotNil(t, config.NullLogger())
}
