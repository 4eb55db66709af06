package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, 65, cfg.ContextThreshold)
	require.Equal(t, 3033, cfg.Port)
	require.Equal(t, 5*time.Second, cfg.SessionDelay)
	require.Equal(t, 0, cfg.MaxSessions)
	require.Equal(t, 10, cfg.MaxIterationsPerPhase)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\ncontext_threshold: 80\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, 80, cfg.ContextThreshold)
	require.Equal(t, 10, cfg.MaxIterationsPerPhase) // untouched default
}

func TestApplyEnvOverridesFields(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"CONTEXT_THRESHOLD": "70",
		"MAX_SESSIONS":      "5",
		"PORT":              "8081",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	require.Equal(t, 70, cfg.ContextThreshold)
	require.Equal(t, 5, cfg.MaxSessions)
	require.Equal(t, 8081, cfg.Port)
}
