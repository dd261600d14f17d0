package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected LogLevel
	}{
		{"trace level", "trace", LevelTrace},
		{"debug level", "debug", LevelDebug},
		{"info level", "info", LevelInfo},
		{"warn level", "warn", LevelWarn},
		{"error level", "error", LevelError},
		{"uppercase trace", "TRACE", LevelTrace},
		{"mixed case debug", "DeBuG", LevelDebug},
		{"empty string", "", LevelWarn},
		{"invalid value", "invalid", LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogLevel, tt.envValue)
			assert.Equal(t, tt.expected, GetLevelFromEnv())
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("warning")
	assert.NoError(t, err)
	assert.Equal(t, LevelWarn, level)

	level, err = ParseLevel("off")
	assert.NoError(t, err)
	assert.Equal(t, LevelNone, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogLevelString(t *testing.T) {
	for _, level := range []LogLevel{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelNone} {
		parsed, err := ParseLevel(level.String())
		assert.NoError(t, err)
		assert.Equal(t, level, parsed)
	}
	assert.Equal(t, "unknown", LogLevel(42).String())
}

func TestWithKV(t *testing.T) {
	l := NewTestLogger()
	WithKV(l, "key", 42).Info("hello")

	logs := l.Logs()
	assert.Len(t, logs, 1)
	assert.Equal(t, 42, logs[0].Metadata["key"])
}
