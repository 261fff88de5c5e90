package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perflens.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Adapters.CallTime)
	assert.True(t, cfg.Adapters.Alloc)
	assert.True(t, cfg.Adapters.LineTime)
	assert.Equal(t, 50*time.Millisecond, cfg.Adapters.AllocInterval)
	assert.Equal(t, 50, cfg.Session.TopN)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
session:
  timeout: 30s
adapters:
  linetime: false
analyze:
  recursion_fanout: 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Session.Timeout)
	assert.False(t, cfg.Adapters.LineTime)
	assert.Equal(t, 250.0, cfg.Analyze.RecursionFanout)

	// Everything the file does not name keeps its default.
	assert.True(t, cfg.Adapters.CallTime)
	assert.Equal(t, 50, cfg.Session.TopN)
	assert.Equal(t, int64(1<<20), cfg.Analyze.GrowthBytes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "logging: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsNoAdapters(t *testing.T) {
	path := writeConfig(t, `
adapters:
  calltime: false
  alloc: false
  linetime: false
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one adapter")
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	path := writeConfig(t, `
analyze:
  recursion_fanout: -5
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursion_fanout")
}

func TestValidateRejectsNegativeTimeout(t *testing.T) {
	cfg := Default()
	cfg.Session.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}
