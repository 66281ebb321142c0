package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, ":5005", cfg.Server.Addr)
		assert.Equal(t, 512, cfg.Imagery.Width)
		assert.Equal(t, 30, cfg.Imagery.TimeoutSeconds)
		assert.Equal(t, 4, cfg.Batch.Workers)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		payload := `
server:
  addr: ":9000"
imagery:
  width: 1024
  cache_dir: /tmp/tiles
batch:
  workers: 8
`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 1024, cfg.Imagery.Width)
		assert.Equal(t, "/tmp/tiles", cfg.Imagery.CacheDir)
		assert.Equal(t, 8, cfg.Batch.Workers)
		assert.Equal(t, 512, cfg.Imagery.Height, "unset fields keep defaults")
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestLoadSecrets(t *testing.T) {
	t.Setenv("SENTINEL_CLIENT_ID", "client-a")
	t.Setenv("TILEMAP_API_KEY", "key-b")

	secrets := LoadSecrets()
	assert.Equal(t, "client-a", secrets.SentinelClientID)
	assert.Equal(t, "key-b", secrets.TileMapAPIKey)
	assert.Empty(t, secrets.GeminiAPIKey)
}
