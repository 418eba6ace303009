package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func TestStructuredLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("rainfall-test", "9.9.9", InfoLevel)
	logger.SetOutput(&buf)

	ctx := WithRequestID(context.Background(), "req-42")
	logger.Info(ctx, "[LOAD_COMPLETE] Dataset loaded", Fields{"rows": 12, "path": "york.csv"})
	logger.Error(ctx, "[ARCHIVE_ERROR] Archive write failed", Fields{}, errors.New("disk full"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)

	info := entries[0]
	assert.Equal(t, "INFO", info["level"])
	assert.Equal(t, "[LOAD_COMPLETE] Dataset loaded", info["message"])
	assert.Equal(t, "rainfall-test", info["service"])
	assert.Equal(t, "9.9.9", info["version"])
	assert.Equal(t, "req-42", info["request_id"])
	fields, ok := info["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(12), fields["rows"])
	assert.Equal(t, "york.csv", fields["path"])
	assert.Contains(t, info["caller"], "logger_test.go")

	assert.Equal(t, "ERROR", entries[1]["level"])
	assert.Equal(t, "disk full", entries[1]["error"])
}

func TestStructuredLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("rainfall-test", "1", WarnLevel)
	logger.SetOutput(&buf)

	logger.Debug(context.Background(), "hidden", nil)
	logger.Info(context.Background(), "hidden", nil)
	logger.Warn(context.Background(), "shown", nil)
	assert.Len(t, decodeLines(t, &buf), 1)

	buf.Reset()
	logger.SetLevel(DebugLevel)
	logger.Debug(context.Background(), "now shown", nil)
	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestContextLoggerMergesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("rainfall-test", "1", InfoLevel)
	logger.SetOutput(&buf)

	scoped := logger.WithFields(Fields{"dataset": "york", "stage": "LOAD"})
	scoped.Info(context.Background(), "[STEP] step", Fields{"stage": "ARCHIVE"})

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	fields := entries[0]["fields"].(map[string]interface{})
	assert.Equal(t, "york", fields["dataset"])
	assert.Equal(t, "ARCHIVE", fields["stage"])
	assert.NotContains(t, entries[0], "request_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
	assert.Equal(t, "FATAL", FatalLevel.String())
}
