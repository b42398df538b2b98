package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"archive-2024-01-01T00-00-00.log",
		"archive-2024-01-02T00-00-00.log",
		"archive-2024-01-03T00-00-00.log",
		"archivectl-2024-01-01T00-00-00.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	require.NoError(t, cleanupOldLogs(dir, "archive", 2))

	left, err := filepath.Glob(filepath.Join(dir, "*.log"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "archive-2024-01-02T00-00-00.log"),
		filepath.Join(dir, "archive-2024-01-03T00-00-00.log"),
		filepath.Join(dir, "archivectl-2024-01-01T00-00-00.log"),
	}, left)
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{Environment: "prod", LogDir: dir, LogMaxFiles: 3}

	logger, closer, err := NewLogger(cfg, "archive")
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())

	files, err := filepath.Glob(filepath.Join(dir, "archive-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
