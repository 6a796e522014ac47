package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
base_url = "https://media.example.com/api"
page_size = 25

[logging]
log_level = "debug"

[upload]
max_file_size = 1048576
allowed_types = ["image/png"]
watch_settle = "5s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://media.example.com/api", cfg.BaseURL)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, int64(1048576), cfg.Upload.MaxFileSize)
	assert.Equal(t, []string{"image/png"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, "5s", cfg.Upload.WatchSettle)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `page_size = 50`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "http://localhost:5000/api", cfg.BaseURL, "unset keys keep defaults")
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxFileSize)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `base_url = not quoted`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_FailsValidation(t *testing.T) {
	path := writeConfig(t, `page_size = -5`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().BaseURL, cfg.BaseURL)
}

func TestLoadOrDefault_ExistingFile(t *testing.T) {
	path := writeConfig(t, `page_size = 7`)

	cfg, err := LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PageSize)
}
