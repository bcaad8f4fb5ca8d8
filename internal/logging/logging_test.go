package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"-4", slog.LevelDebug},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in, slog.LevelInfo))
		})
	}
}

func TestNewJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "debug"})

	logger.With("component", "test").Debug("hello", "n", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "test", line["component"])
}

func TestNewTextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "warn", Format: "text"})

	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestNewFileWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.log")
	logger, w := NewFile(FileOptions{Filename: path, MaxSizeMB: 1}, Options{Format: "text"})

	logger.Info("saved", "test_case_id", "tc-1")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "test_case_id=tc-1")
}
