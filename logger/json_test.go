package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l := NewJSONLogger(&buf, LevelInfo).(*jsonLogger)
	l.now = func() time.Time { return ts }

	l.Debug("skipped")
	l.With(map[string]interface{}{"component": "resourcectl", "key": "a"}).WithPrefix("bench").Info("loaded %d", 3)

	var entry JSONLogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "loaded 3", entry.Message)
	assert.Equal(t, "INFO", entry.Severity)
	assert.Equal(t, "resourcectl bench", entry.Component)
	assert.Equal(t, map[string]interface{}{"key": "a"}, entry.Metadata)
	assert.True(t, ts.Equal(entry.Timestamp))
}
