package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLvl  zapcore.Level
		wantErr  bool
	}{
		{"empty defaults to info", "", zapcore.InfoLevel, false},
		{"debug", "debug", zapcore.DebugLevel, false},
		{"warn", "warn", zapcore.WarnLevel, false},
		{"error", "error", zapcore.ErrorLevel, false},
		{"invalid", "bogus", zapcore.InfoLevel, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lvl, err := ParseLogLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantLvl, lvl.Level())
		})
	}
}

func TestCreateLoggerToFile(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "test.log")

	lvl, err := ParseLogLevel("debug")
	require.NoError(t, err)

	logger := CreateLogger(lvl, logFile)
	require.NotNil(t, logger)

	logger.Infow("hello", "k", "v")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hello")
}

func TestCreateLoggerConsole(t *testing.T) {
	lvl, err := ParseLogLevel("error")
	require.NoError(t, err)

	logger := CreateLogger(lvl, "")
	require.NotNil(t, logger)

	assert.NotPanics(t, func() {
		logger.Errorw("boom", "k", "v")
	})
}
