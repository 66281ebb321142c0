package geo

import (
	"fmt"
	"math"
)

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BBox is a rectangular geographic region expressed as min/max longitude and
// latitude. MinLon <= MaxLon and MinLat <= MaxLat for every valid box.
type BBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// metersPerDegreeLat is a good average for the WGS84 ellipsoid.
const metersPerDegreeLat = 111320.0

// FromCenter builds a bounding box around a center point with the given buffer
// radius in meters. Longitude extent is corrected for latitude so the box stays
// roughly square on the ground.
func FromCenter(center Point, bufferMeters float64) BBox {
	if bufferMeters <= 0 {
		bufferMeters = 500
	}

	dLat := bufferMeters / metersPerDegreeLat
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	if math.Abs(cosLat) < 1e-6 {
		cosLat = 1e-6
	}
	dLon := bufferMeters / (metersPerDegreeLat * cosLat)

	return BBox{
		MinLon: center.Lon - dLon,
		MinLat: center.Lat - dLat,
		MaxLon: center.Lon + dLon,
		MaxLat: center.Lat + dLat,
	}
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// WidthMeters returns the approximate ground width of the box at its center
// latitude.
func (b BBox) WidthMeters() float64 {
	cosLat := math.Cos(b.Center().Lat * math.Pi / 180)
	return (b.MaxLon - b.MinLon) * metersPerDegreeLat * math.Abs(cosLat)
}

// HeightMeters returns the approximate ground height of the box.
func (b BBox) HeightMeters() float64 {
	return (b.MaxLat - b.MinLat) * metersPerDegreeLat
}

// Valid reports whether the box is well formed and within world bounds.
func (b BBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// String renders the box in min-lon,min-lat,max-lon,max-lat order, the order
// most imagery APIs expect.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// SplitGrid partitions the box into gridN x gridN equal sub-boxes in row-major
// order, northernmost row first. The result always has gridN*gridN entries.
func (b BBox) SplitGrid(gridN int) []BBox {
	if gridN < 1 {
		gridN = 1
	}

	lonStep := (b.MaxLon - b.MinLon) / float64(gridN)
	latStep := (b.MaxLat - b.MinLat) / float64(gridN)

	cells := make([]BBox, 0, gridN*gridN)
	for row := 0; row < gridN; row++ {
		// Row 0 is the top (northern) edge so the stitched raster reads
		// like a map.
		maxLat := b.MaxLat - float64(row)*latStep
		minLat := maxLat - latStep
		for col := 0; col < gridN; col++ {
			minLon := b.MinLon + float64(col)*lonStep
			cells = append(cells, BBox{
				MinLon: minLon,
				MinLat: minLat,
				MaxLon: minLon + lonStep,
				MaxLat: maxLat,
			})
		}
	}
	return cells
}
