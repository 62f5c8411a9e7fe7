package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, "docrag.log", filepath.Base(path))
	assert.Contains(t, path, ".docrag")
}

func TestDefaultConfigs(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.False(t, cfg.WriteToStderr)

	debug := DebugConfig()
	assert.Equal(t, "debug", debug.Level)
	assert.True(t, debug.WriteToStderr)

	serve := ServeConfig("warn")
	assert.Equal(t, "warn", serve.Level)
	assert.False(t, serve.WriteToStderr)
}

func TestSetup_WritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
	})
	require.NoError(t, err)

	logger.Debug("offset_cache_rebuilt", slog.String("store", "rows.jsonl"), slog.Int("rows", 3))
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry))
	assert.Equal(t, "offset_cache_rebuilt", entry["msg"])
	assert.Equal(t, "rows.jsonl", entry["store"])
	assert.Equal(t, float64(3), entry["rows"])
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: logPath})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	cleanup()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestRotatingWriter_RotatesAndPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docrag.log")

	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	// force tiny rotation threshold
	w.maxSize = 10

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte("0123456789\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}
