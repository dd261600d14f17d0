package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLoggerWithWriter(&buf, LevelInfo)

	l.Debug("hidden")
	l.Info("shown %d", 1)
	l.Error("failed: %s", "boom")

	out := ansiColorStripper.ReplaceAllString(buf.String(), "")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO]  shown 1")
	assert.Contains(t, out, "[ERROR] failed: boom")
	assert.False(t, l.IsLevelEnabled(LevelDebug))
	assert.True(t, l.IsLevelEnabled(LevelWarn))
}

func TestConsoleLoggerMetadataAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	base := NewConsoleLoggerWithWriter(&buf, LevelTrace)
	l := base.With(map[string]interface{}{"resource": "users"}).WithPrefix("[load]")
	l.Warn("slow")
	base.Warn("plain")

	lines := strings.Split(strings.TrimSpace(ansiColorStripper.ReplaceAllString(buf.String(), "")), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "[load] slow")
	assert.Contains(t, lines[0], `{"resource":"users"}`)
	assert.NotContains(t, lines[1], "users")
}

func TestConsoleLoggerSink(t *testing.T) {
	var out, sink bytes.Buffer
	l := NewConsoleLoggerWithWriter(&out, LevelError)
	l.SetSink(&sink, LevelDebug)

	assert.True(t, l.IsLevelEnabled(LevelDebug))
	l.Debug("to sink only")

	assert.Empty(t, out.String())
	assert.Contains(t, sink.String(), "[DEBUG] to sink only")
	assert.NotContains(t, sink.String(), "\x1b[")
}

func TestConsoleLoggerStack(t *testing.T) {
	var buf bytes.Buffer
	test := NewTestLogger()
	l := NewConsoleLoggerWithWriter(&buf, LevelNone).Stack(test)
	l.Info("both")

	assert.Empty(t, buf.String())
	assert.Len(t, test.Find("INFO", "both"), 1)
}
