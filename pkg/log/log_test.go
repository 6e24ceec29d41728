package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("Step skipped", "step", "route")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "Step skipped", entry["msg"])
	assert.Equal(t, "route", entry["step"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer

	New(&buf, "debug", "text").Debug("Rule registered", "rule", "large_amount")

	assert.Contains(t, buf.String(), "msg=\"Rule registered\"")
	assert.Contains(t, buf.String(), "rule=large_amount")
}
