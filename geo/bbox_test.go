package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromCenterIsSquareOnTheGround(t *testing.T) {
	t.Parallel()

	box := FromCenter(Point{Lat: 48.5, Lon: 35.0}, 1000)
	require.True(t, box.Valid())

	assert.InDelta(t, 2000, box.WidthMeters(), 25)
	assert.InDelta(t, 2000, box.HeightMeters(), 25)

	center := box.Center()
	assert.InDelta(t, 48.5, center.Lat, 1e-9)
	assert.InDelta(t, 35.0, center.Lon, 1e-9)
}

func TestFromCenterDefaultsBuffer(t *testing.T) {
	t.Parallel()

	box := FromCenter(Point{Lat: 10, Lon: 10}, -5)
	assert.InDelta(t, 1000, box.HeightMeters(), 15)
}

func TestSplitGridCoversParentExactly(t *testing.T) {
	t.Parallel()

	parent := BBox{MinLon: 30, MinLat: 40, MaxLon: 32, MaxLat: 42}
	cells := parent.SplitGrid(3)
	require.Len(t, cells, 9)

	// Row-major, north first: the first cell owns the north-west corner.
	first := cells[0]
	assert.InDelta(t, parent.MinLon, first.MinLon, 1e-9)
	assert.InDelta(t, parent.MaxLat, first.MaxLat, 1e-9)

	last := cells[8]
	assert.InDelta(t, parent.MaxLon, last.MaxLon, 1e-9)
	assert.InDelta(t, parent.MinLat, last.MinLat, 1e-9)

	var area float64
	for _, c := range cells {
		require.True(t, c.Valid(), "cell %v", c)
		area += (c.MaxLon - c.MinLon) * (c.MaxLat - c.MinLat)
	}
	parentArea := (parent.MaxLon - parent.MinLon) * (parent.MaxLat - parent.MinLat)
	assert.InDelta(t, parentArea, area, 1e-9)
}

func TestSplitGridClampsDegenerateN(t *testing.T) {
	t.Parallel()

	parent := BBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}
	cells := parent.SplitGrid(0)
	require.Len(t, cells, 1)
	assert.Equal(t, parent, cells[0])
}

func TestBBoxStringOrder(t *testing.T) {
	t.Parallel()

	b := BBox{MinLon: -1.5, MinLat: 2.25, MaxLon: 3.125, MaxLat: 4.0625}
	assert.Equal(t, "-1.500000,2.250000,3.125000,4.062500", b.String())
}

func TestValidRejectsOutOfWorldBoxes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		box  BBox
	}{
		{"inverted", BBox{MinLon: 2, MinLat: 0, MaxLon: 1, MaxLat: 1}},
		{"lat overflow", BBox{MinLon: 0, MinLat: 80, MaxLon: 1, MaxLat: 91}},
		{"lon overflow", BBox{MinLon: -181, MinLat: 0, MaxLon: 0, MaxLat: 1}},
	}
	for _, tc := range cases {
		assert.False(t, tc.box.Valid(), tc.name)
	}
}

func TestWidthMetersNearPole(t *testing.T) {
	t.Parallel()

	b := BBox{MinLon: 0, MinLat: 89.9, MaxLon: 1, MaxLat: 89.99}
	assert.False(t, math.IsNaN(b.WidthMeters()))
	assert.Greater(t, b.WidthMeters(), 0.0)
}
