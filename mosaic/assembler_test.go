package mosaic

import (
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
)

func testArea() geo.BBox {
	return geo.BBox{MinLon: 35.0, MinLat: 48.0, MaxLon: 35.2, MaxLat: 48.2}
}

func syntheticClient(t *testing.T) *imagery.Client {
	t.Helper()
	cache, err := imagery.NewDiskCache(t.TempDir())
	require.NoError(t, err)
	return imagery.NewClient([]imagery.Provider{imagery.NewSyntheticProvider()}, cache)
}

// failingClient has no providers at all, so every acquisition exhausts the
// (empty) chain. This simulates a deployment with the synthetic fallback
// disabled.
func failingClient(t *testing.T) *imagery.Client {
	t.Helper()
	cache, err := imagery.NewDiskCache(t.TempDir())
	require.NoError(t, err)
	return imagery.NewClient(nil, cache)
}

func TestAssembleProducesDeterministicDimensions(t *testing.T) {
	t.Parallel()

	assembler := NewAssembler(syntheticClient(t), WithTileSize(64), WithConcurrency(2))
	result, err := assembler.Assemble(context.Background(), testArea(), 3)
	require.NoError(t, err)

	assert.Equal(t, 3*64, result.Image.Bounds().Dx())
	assert.Equal(t, 3*64, result.Image.Bounds().Dy())
	require.Len(t, result.Tiles, 9)
	assert.Greater(t, result.TotalBytes, 0)

	for _, tile := range result.Tiles {
		assert.True(t, tile.Success, "synthetic chain never fails")
		assert.Equal(t, "synthetic", tile.Source)
	}
}

func TestAssembleAllTilesFailedStillFullSize(t *testing.T) {
	t.Parallel()

	assembler := NewAssembler(failingClient(t), WithTileSize(32))
	result, err := assembler.Assemble(context.Background(), testArea(), 2)
	require.NoError(t, err)

	assert.Equal(t, 64, result.Image.Bounds().Dx())
	assert.Equal(t, 64, result.Image.Bounds().Dy())
	assert.Equal(t, 0, result.TotalBytes)

	for _, tile := range result.Tiles {
		assert.False(t, tile.Success)
		assert.NotEmpty(t, tile.Error)
	}

	// Placeholder cells are black.
	r, g, b, _ := result.Image.At(10, 10).RGBA()
	assert.Equal(t, color.RGBA{A: 255}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
}

func TestAssembleTileMetadataGridPositions(t *testing.T) {
	t.Parallel()

	area := testArea()
	assembler := NewAssembler(syntheticClient(t), WithTileSize(16))
	result, err := assembler.Assemble(context.Background(), area, 2)
	require.NoError(t, err)
	require.Len(t, result.Tiles, 4)

	// Row-major order with the north row first.
	assert.Equal(t, 0, result.Tiles[0].Row)
	assert.Equal(t, 0, result.Tiles[0].Col)
	assert.Equal(t, 1, result.Tiles[3].Row)
	assert.Equal(t, 1, result.Tiles[3].Col)

	assert.InDelta(t, area.MaxLat, result.Tiles[0].BBox.MaxLat, 1e-9)
	assert.InDelta(t, area.MinLat, result.Tiles[3].BBox.MinLat, 1e-9)

	for _, tile := range result.Tiles {
		center := tile.BBox.Center()
		assert.InDelta(t, center.Lat, tile.Center.Lat, 1e-9)
		assert.InDelta(t, center.Lon, tile.Center.Lon, 1e-9)
	}
}

func TestAssembleClampsGridN(t *testing.T) {
	t.Parallel()

	assembler := NewAssembler(syntheticClient(t), WithTileSize(16))
	result, err := assembler.Assemble(context.Background(), testArea(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.GridN)
	assert.Len(t, result.Tiles, 1)
}

func TestAssembleRespectsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assembler := NewAssembler(syntheticClient(t), WithTileSize(16))
	_, err := assembler.Assemble(ctx, testArea(), 2)
	assert.Error(t, err)
}
