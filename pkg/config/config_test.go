package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://pje.tjmg.jus.br", cfg.Portal.BaseURL)
	assert.Equal(t, "https://pje.tjmg.jus.br/pje/login.seam", cfg.Portal.LoginURL)
	assert.Equal(t, "https://pje.tjmg.jus.br/pje/Processo/ConsultaProcesso/listView.seam", cfg.Portal.ConsultationURL)
	assert.Equal(t, "s3-pjedocumentos.tjmg.jus.br", cfg.Portal.DocumentHost)
	assert.Equal(t, 30, cfg.Browser.DefaultTimeoutSeconds)
	assert.Equal(t, 45, cfg.Browser.LoginTimeoutSeconds)
	assert.Equal(t, 60, cfg.Browser.DownloadTimeoutSeconds)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, "case_records.db", cfg.Registry.Path)
	assert.Equal(t, 30, cfg.Webhook.TimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, LogFormatText, cfg.Logging.Format)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Storage.DataDir)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
portal:
  base_url: https://pje.example.test
browser:
  headless: true
  default_timeout_seconds: 10
webhook:
  url: https://hooks.example.test/done
logging:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://pje.example.test", cfg.Portal.BaseURL)
	// Derived endpoints follow the overridden base URL.
	assert.Equal(t, "https://pje.example.test/pje/login.seam", cfg.Portal.LoginURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10, cfg.Browser.DefaultTimeoutSeconds)
	assert.Equal(t, "https://hooks.example.test/done", cfg.Webhook.URL)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  format: xml\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvPublicBaseURL, "https://files.example.test")
	t.Setenv(EnvWebhookURL, "https://hooks.example.test/env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.test", cfg.Storage.PublicBaseURL)
	assert.Equal(t, "https://hooks.example.test/env", cfg.Webhook.URL)
}

func TestCredentials(t *testing.T) {
	cfg := &Config{}

	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")
	_, err := cfg.Credentials()
	assert.Error(t, err)

	t.Setenv(EnvUsername, "12345678900")
	_, err = cfg.Credentials()
	assert.Error(t, err, "password still missing")

	t.Setenv(EnvPassword, "s3cret")
	creds, err := cfg.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "12345678900", creds.Username)
	assert.Equal(t, "s3cret", creds.Password)
}
