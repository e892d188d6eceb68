package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Dedup.WindowSeconds)
	assert.Equal(t, 1024, cfg.Dedup.TableSize)
	assert.Equal(t, int64(100*1024*1024), cfg.Sinks.File.MaxFileSizeBytes)
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
probe:
  handshake: true
  comm_filter: ["curl", "python3"]
dedup:
  window_seconds: 30
sinks:
  quiet: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Probe.Handshake)
	assert.Equal(t, []string{"curl", "python3"}, cfg.Probe.CommFilter)
	assert.Equal(t, 30, cfg.Dedup.WindowSeconds)
	assert.True(t, cfg.Sinks.Quiet)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dedup:\n  window_seconds: 30\n"), 0o644))

	t.Setenv("AGENTSIGHT_DEDUP_WINDOW_SECONDS", "90")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Dedup.WindowSeconds)
}

func TestLoad_EnvEnablesFileSink(t *testing.T) {
	t.Setenv("AGENTSIGHT_LOG_FILE", "/tmp/agentsight.log")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Sinks.File.Enabled)
	assert.Equal(t, "/tmp/agentsight.log", cfg.Sinks.File.Path)
}
