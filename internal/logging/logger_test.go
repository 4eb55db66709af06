package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIsNoopWhenDebugDisabled(t *testing.T) {
	debugMode = false
	logsDir = ""
	l := Get(CategoryTasks)
	require.Nil(t, l.logger)
	l.Info("should not panic") // no-op
}

func TestInitializeCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(dir, true, "debug", false))
	defer Initialize("", false, "info", false)

	Get(CategoryTasks).Info("hello %s", "world")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			found = true
		}
	}
	require.True(t, found)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, parseLevel("debug"))
	require.Equal(t, LevelWarn, parseLevel("warn"))
	require.Equal(t, LevelError, parseLevel("error"))
	require.Equal(t, LevelInfo, parseLevel("bogus"))
}
