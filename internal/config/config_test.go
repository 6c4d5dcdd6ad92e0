package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "AUTH_API_URL", "OPENAI_API_KEY", "GEMINI_API_KEY",
		"LLM_PROVIDER", "LLM_MODEL", "LISTEN_ADDR",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 25*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Auth.Timeout)
	assert.Equal(t, ":8000", cfg.Server.ListenAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("DATABASE_URL and AUTH_API_URL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "data/runx.db")
		t.Setenv("AUTH_API_URL", "https://auth.example.com/login")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "data/runx.db", cfg.DatabaseURL)
		assert.Equal(t, "https://auth.example.com/login", cfg.Auth.APIURL)
	})

	t.Run("OPENAI_API_KEY keeps openai provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("GEMINI_API_KEY switches provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gm-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("LLM_PROVIDER wins over key-derived provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gm-key")
		t.Setenv("LLM_PROVIDER", "openai")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("missing file keeps defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, ":8000", cfg.Server.ListenAddr)
	})

	t.Run("file values load with env on top", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "runxchat.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
database_url: file.db
llm:
  model: gpt-4o-mini
server:
  listen_addr: ":9000"
`), 0o644))
		t.Setenv("DATABASE_URL", "env.db")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.DatabaseURL)
		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
		assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`{:::`), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Run("missing DATABASE_URL is fatal", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, cfg.Validate())
	})

	t.Run("set DATABASE_URL passes", func(t *testing.T) {
		cfg := Default()
		cfg.DatabaseURL = "data/runx.db"
		assert.NoError(t, cfg.Validate())
	})
}
