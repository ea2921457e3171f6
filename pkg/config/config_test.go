package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ADMIN_TOKEN", "env-token")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "env-token", cfg.AdminToken)
	require.True(t, cfg.LogJSON)
	require.Equal(t, 4, cfg.Workers)
}

func TestLoadYAMLFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvdoc.yaml")
	require.NoError(t, writeFile(path, "port: 6000\nworkers: 8\n"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 6000, cfg.Port)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "supersecret", cfg.AdminToken)
}

func TestEnvWinsOverYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kvdoc.yaml")
	require.NoError(t, writeFile(path, "port: 6000\n"))
	t.Setenv("PORT", "7000")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
}

func TestLoadMissingYAMLFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}
