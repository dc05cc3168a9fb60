package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0o600))
}

func TestLoadProfile_ValidMinimal(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "scarlet", `
name: scarlet
display_name: Scarlet
policy_tier: standard
allowed_tool_tiers: [tier0, tier1]
`)

	p, err := config.LoadProfile(dir, "scarlet", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "Scarlet", p.DisplayName)
	assert.Equal(t, 8600, p.HealthPort, "missing health_port defaults to 8600")
	assert.Equal(t, "gpt-4o-mini", p.LLMDefaultModel)
	assert.True(t, p.AllowedTier("tier0"))
	assert.False(t, p.AllowedTier("tier2"))
	assert.Contains(t, p.PublicReadonlyGetEndpoints, "/health")
	assert.Equal(t, filepath.Join(p.Paths.BaseDataDir, "memory.db"), p.Paths.DBPath)
}

func TestLoadProfile_MissingRequiredKey(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "scarlet", `
name: scarlet
display_name: Scarlet
`)
	_, err := config.LoadProfile(dir, "scarlet", t.TempDir())
	assert.Error(t, err)
}

func TestLoadProfile_NameMismatch(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "scarlet", `
name: jason
display_name: Scarlet
policy_tier: standard
allowed_tool_tiers: [tier0]
`)
	_, err := config.LoadProfile(dir, "scarlet", t.TempDir())
	assert.Error(t, err)
}

func TestLoadProfile_NotFound(t *testing.T) {
	_, err := config.LoadProfile(t.TempDir(), "missing", t.TempDir())
	assert.Error(t, err)
}

func TestLoadNodeDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routing:
  hub_profile: jason
nodes:
  node-jason:
    host: jason.local
    profile: jason
  node-kiera:
    host: kiera.local
    profile: kiera
  node-future:
    host: future.TBD
    profile: future
`), 0o600))

	dir, err := config.LoadNodeDirectory(path)
	require.NoError(t, err)
	assert.Equal(t, "jason", dir.HubProfile)

	targets := dir.ConfiguredTargets("scarlet")
	assert.Len(t, targets, 2)
	_, futureConfigured := targets["future"]
	assert.False(t, futureConfigured, "placeholder .TBD hosts are never configured targets")

	targets = dir.ConfiguredTargets("jason")
	_, selfPresent := targets["jason"]
	assert.False(t, selfPresent, "a profile never targets itself")
}

func TestLoadNodeDirectory_MissingFile(t *testing.T) {
	dir, err := config.LoadNodeDirectory(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, dir.Nodes)
}
