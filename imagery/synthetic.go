package imagery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
)

const syntheticName = "synthetic"

// SyntheticProvider is the terminal safety net of the fallback chain. It
// procedurally renders a terrain-like image for any request and is defined to
// never fail, which bounds error propagation at the acquisition boundary.
//
// The generator is seeded from the request parameters, so the same request
// always yields byte-identical output. SeedFn can replace that with a system
// RNG in deployments that prefer varied placeholders.
type SyntheticProvider struct {
	// SeedFn derives the RNG seed for one request. Nil means "hash of the
	// request cache key" (fully reproducible).
	SeedFn func(req ImageRequest) int64
}

// NewSyntheticProvider returns the deterministic generator.
func NewSyntheticProvider() *SyntheticProvider {
	return &SyntheticProvider{}
}

func (p *SyntheticProvider) Name() string { return syntheticName }

func (p *SyntheticProvider) Available() bool { return true }

func (p *SyntheticProvider) seed(req ImageRequest) int64 {
	if p.SeedFn != nil {
		return p.SeedFn(req)
	}
	sum := sha256.Sum256([]byte(req.CacheKey()))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Fetch renders a deterministic procedural image. The error return exists only
// to satisfy the Provider interface; it is always nil.
func (p *SyntheticProvider) Fetch(_ context.Context, req ImageRequest) ([]byte, error) {
	req = req.normalized()
	rng := rand.New(rand.NewSource(p.seed(req)))

	img := renderTerrain(rng, req.Width, req.Height)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// Encoding an in-memory RGBA image cannot fail; keep the branch
		// so the contract survives refactors of the render path.
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderTerrain draws layered value noise shaded into earth tones, with a few
// darker patches that read as vegetation or shadow. The output is textured
// enough that downstream edge and color detectors produce non-degenerate
// statistics.
func renderTerrain(rng *rand.Rand, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Coarse noise lattice interpolated bilinearly.
	const lattice = 17
	grid := make([]float64, lattice*lattice)
	for i := range grid {
		grid[i] = rng.Float64()
	}
	sample := func(x, y float64) float64 {
		// Octave calls pass coordinates beyond 1; tile the lattice.
		x -= math.Floor(x)
		y -= math.Floor(y)
		gx := x * float64(lattice-1)
		gy := y * float64(lattice-1)
		x0, y0 := int(gx), int(gy)
		x1, y1 := x0+1, y0+1
		if x1 >= lattice {
			x1 = lattice - 1
		}
		if y1 >= lattice {
			y1 = lattice - 1
		}
		fx, fy := gx-float64(x0), gy-float64(y0)
		top := grid[y0*lattice+x0]*(1-fx) + grid[y0*lattice+x1]*fx
		bot := grid[y1*lattice+x0]*(1-fx) + grid[y1*lattice+x1]*fx
		return top*(1-fy) + bot*fy
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			u := float64(x) / float64(width)
			v := float64(y) / float64(height)

			elev := 0.6*sample(u, v) + 0.3*sample(u*3, v*3) + 0.1*sample(u*9, v*9)
			// Gentle diagonal illumination gradient.
			elev = 0.8*elev + 0.2*(u+v)/2

			r := uint8(clampF(90+110*elev, 0, 255))
			g := uint8(clampF(80+100*elev, 0, 255))
			b := uint8(clampF(60+70*elev, 0, 255))
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}

	// Scatter darker patches so the frame is not uniformly smooth.
	patches := 4 + rng.Intn(5)
	for i := 0; i < patches; i++ {
		cx := rng.Intn(width)
		cy := rng.Intn(height)
		radius := 5 + rng.Intn(width/8+1)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				x, y := cx+dx, cy+dy
				if x < 0 || y < 0 || x >= width || y >= height {
					continue
				}
				if dx*dx+dy*dy > radius*radius {
					continue
				}
				c := img.RGBAAt(x, y)
				fade := 1 - math.Sqrt(float64(dx*dx+dy*dy))/float64(radius)
				c.R = uint8(float64(c.R) * (1 - 0.45*fade))
				c.G = uint8(float64(c.G) * (1 - 0.30*fade))
				c.B = uint8(float64(c.B) * (1 - 0.45*fade))
				img.SetRGBA(x, y, c)
			}
		}
	}

	return img
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
