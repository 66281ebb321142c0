package imagery

// Resolution is estimated post hoc from payload size and provider identity.
// Providers do not report ground resolution uniformly, so a simple
// size-to-resolution table keeps the estimate consistent across the chain.

type resolutionBand struct {
	minBytes int
	mPerPx   float64
}

// Larger payloads imply more detail captured per pixel at the fixed output
// dimensions, hence a finer estimate. Bands are checked top-down.
var resolutionBands = map[string][]resolutionBand{
	sentinelHubName: {
		{minBytes: 400_000, mPerPx: 10},
		{minBytes: 150_000, mPerPx: 20},
		{minBytes: 0, mPerPx: 60},
	},
	tileMapName: {
		{minBytes: 300_000, mPerPx: 5},
		{minBytes: 100_000, mPerPx: 15},
		{minBytes: 0, mPerPx: 40},
	},
	syntheticName: {
		{minBytes: 0, mPerPx: 30},
	},
}

// estimateResolution maps (provider, payload size) to an approximate ground
// resolution in meters per pixel. Unknown providers get a conservative value.
func estimateResolution(provider string, payloadBytes int) float64 {
	bands, ok := resolutionBands[provider]
	if !ok {
		return 50
	}
	for _, band := range bands {
		if payloadBytes >= band.minBytes {
			return band.mPerPx
		}
	}
	return bands[len(bands)-1].mPerPx
}
