package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
provider:
  model: gpt-4o-mini
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRetryTimes, cfg.MaxRetryTimes)
	require.Equal(t, DefaultPruneMaxChars, cfg.PruneMaxChars)
	require.Equal(t, "https://api.openai.com/v1", cfg.Provider.BaseURL)
	require.Equal(t, "OPENAI_API_KEY", cfg.Provider.APIKeyEnvVar)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
provider:
  model: gpt-4o-mini
  base_url: https://api.fireworks.ai/inference/v1
  api_key_env_var: FIREWORKS_API_KEY
max_retry_times: 3
prune_max_chars: 1000
mcp:
  - name: filesystem
    type: stdio
    command: mcp-filesystem-server
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxRetryTimes)
	require.Equal(t, 1000, cfg.PruneMaxChars)
	require.Equal(t, "FIREWORKS_API_KEY", cfg.Provider.APIKeyEnvVar)
	require.Len(t, cfg.MCP, 1)
	require.Equal(t, "filesystem", cfg.MCP[0].Name)
}

func TestValidateRejectsMissingModel(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `provider: {}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnnamedMCPServer(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
provider:
  model: gpt-4o-mini
mcp:
  - type: stdio
    command: mcp-filesystem-server
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestAPIKeyEnvVarsReturnsConfiguredName(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
provider:
  model: gpt-4o-mini
  api_key_env_var: MY_KEY
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"MY_KEY"}, cfg.APIKeyEnvVars())
}
