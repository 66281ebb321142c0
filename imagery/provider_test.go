package imagery

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestProviderEndpointOverrides(t *testing.T) {
	t.Parallel()

	t.Run("sentinel hub honors configured endpoints", func(t *testing.T) {
		t.Parallel()
		p := NewSentinelHubProvider("https://sh.example.test", "https://sh.example.test/token",
			"id", "secret", 5*time.Second, clockwork.NewFakeClock())
		assert.Equal(t, "https://sh.example.test", p.baseURL)
		assert.Equal(t, "https://sh.example.test/token", p.tokens.cfg.TokenURL)
		assert.True(t, p.Available())
	})

	t.Run("sentinel hub falls back to the public endpoints", func(t *testing.T) {
		t.Parallel()
		p := NewSentinelHubProvider("", "", "id", "secret", 0, nil)
		assert.Equal(t, sentinelHubBaseURL, p.baseURL)
		assert.Equal(t, sentinelHubTokenURL, p.tokens.cfg.TokenURL)
	})

	t.Run("tile map honors a configured endpoint", func(t *testing.T) {
		t.Parallel()
		p := NewTileMapProvider("https://tiles.example.test", "key", 5*time.Second)
		assert.Equal(t, "https://tiles.example.test", p.baseURL)
		assert.True(t, p.Available())
	})

	t.Run("tile map falls back to the public endpoint", func(t *testing.T) {
		t.Parallel()
		p := NewTileMapProvider("", "key", 0)
		assert.Equal(t, tileMapBaseURL, p.baseURL)
	})
}
