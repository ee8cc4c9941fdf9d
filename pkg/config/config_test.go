package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"port": 9090,
		"provider": {
			"client_id": "cid",
			"client_secret": "csecret",
			"redirect_uri": "https://example.com/callback",
			"environment": "production"
		},
		"storage": {"type": "file", "file_path": "/tmp/slots.json"}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "cid", cfg.Provider.ClientID)
	assert.Equal(t, "production", cfg.Provider.Environment)
	assert.Equal(t, "file", cfg.Storage.Type)
	// Defaults survive for fields the file does not set.
	assert.NotEmpty(t, cfg.Provider.Scope)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
port: 9091
provider:
  client_id: cid
  client_secret: csecret
  environment: sandbox
sync:
  schedule: "@every 6h"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Port)
	assert.Equal(t, "cid", cfg.Provider.ClientID)
	assert.Equal(t, "@every 6h", cfg.Sync.Schedule)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("BANKLINK_CLIENT_ID", "env-cid")
	t.Setenv("BANKLINK_CLIENT_SECRET", "env-secret")
	t.Setenv("BANKLINK_ENCRYPTION_SECRET", "env-enc")

	cfg := DefaultConfig()
	cfg.Provider.ClientID = "file-cid"
	cfg.ApplyEnv()

	assert.Equal(t, "env-cid", cfg.Provider.ClientID)
	assert.Equal(t, "env-secret", cfg.Provider.ClientSecret)
	assert.Equal(t, "env-enc", cfg.EncryptionSecret)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EncryptionSecret = "secret"

	err := cfg.Validate()
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "provider.client_id", configErr.Field)

	cfg.Provider.ClientID = "cid"
	err = cfg.Validate()
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, "provider.client_secret", configErr.Field)

	cfg.Provider.ClientSecret = "csecret"
	assert.NoError(t, cfg.Validate())
}
