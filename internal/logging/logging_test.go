package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew_FileOutputWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.File.Path = path
	cfg.Level = "warn"

	logger, err := New(cfg)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", zap.String("task_id", "abc"))
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "abc", entry["task_id"])
}

func TestNew_OutputPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "direct.log")
	cfg := DefaultConfig()
	cfg.Output = path
	cfg.Format = "console"

	logger, err := New(cfg)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "INFO")
	assert.Contains(t, string(raw), "hello")
}

func TestNew_FileWithoutPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.File.Path = ""

	_, err := New(cfg)
	assert.Error(t, err)
}
