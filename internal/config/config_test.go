package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, "data/navscout.db", cfg.Store.DatabasePath)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navscout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
browser:
  headless: false
  viewport_width: 1280
explore:
  turn_budget: 25
batch:
  concurrency: 8
store:
  database_path: /tmp/other.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1280, cfg.Browser.ViewportWidth)
	assert.Equal(t, 25, cfg.Explore.TurnBudget)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "/tmp/other.db", cfg.Store.DatabasePath)

	// Untouched sections keep defaults.
	assert.Equal(t, "gemini-2.5-flash", cfg.Oracle.Model)
	assert.Equal(t, 1080, cfg.Browser.ViewportHeight)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browser: [not a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("NAVSCOUT_DB", "/tmp/env.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.APIKey())
	assert.Equal(t, "/tmp/env.db", cfg.Store.DatabasePath)
	assert.NoError(t, cfg.Validate())
}

func TestCustomAPIKeyEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navscout.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oracle:
  api_key_env: NAVSCOUT_ORACLE_KEY
  model: gemini-2.5-pro
`), 0o644))
	t.Setenv("NAVSCOUT_ORACLE_KEY", "other-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other-key", cfg.APIKey())

	g := cfg.GeminiConfig()
	assert.Equal(t, "gemini-2.5-pro", g.Model)
	assert.Equal(t, "other-key", g.APIKey)
}

func TestValidateMissingKey(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "navscout.yaml")

	cfg := Default()
	cfg.Explore.TurnBudget = 99
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Explore.TurnBudget)
}
