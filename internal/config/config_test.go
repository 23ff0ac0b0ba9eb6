package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.Server.Address)
	assert.Equal(t, "https://api.deepseek.com", cfg.LLM.BaseURL)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KB_LLM_BASE_URL", "http://llm.local")
	t.Setenv("KB_LLM_TIMEOUT", "5s")
	t.Setenv("KB_CACHE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://llm.local", cfg.LLM.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kb.yaml")
	content := "server:\n  address: \":9999\"\nstorage:\n  driver: postgres\n  postgres_dsn: postgres://u@localhost/kb\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://u@localhost/kb", cfg.Storage.PostgresDSN)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		LLM:     LLMConfig{BaseURL: "http://x", Timeout: time.Second},
		Storage: StorageConfig{Driver: "postgres"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Storage.Driver = "mysql"
	assert.Error(t, cfg.Validate())

	cfg.Storage = StorageConfig{Driver: "sqlite", SQLiteDSN: ":memory:"}
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Timeout = 0
	assert.Error(t, cfg.Validate())
}
