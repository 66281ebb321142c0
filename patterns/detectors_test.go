package patterns

import (
	"context"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func noiseImage(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(rng.Intn(256))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func TestFireSmoke(t *testing.T) {
	t.Parallel()

	t.Run("six percent fire coverage detected", func(t *testing.T) {
		t.Parallel()
		// 600 of 10000 pixels pure red; the rest black, which matches
		// neither mask.
		img := flatImage(100, 100, color.RGBA{A: 255})
		painted := 0
		for y := 0; y < 100 && painted < 600; y++ {
			for x := 0; x < 100 && painted < 600; x++ {
				img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
				painted++
			}
		}

		finding := FireSmoke(img)
		assert.True(t, finding.Detected)
		assert.InDelta(t, 0.06, finding.Metrics["fire_fraction"], 0.005)
		assert.GreaterOrEqual(t, finding.RiskContribution, 5.5)
		assert.LessOrEqual(t, finding.RiskContribution, 8.0)
		assert.Greater(t, finding.Confidence, 0.0)
	})

	t.Run("full smoke frame capped at six", func(t *testing.T) {
		t.Parallel()
		// Mid-gray everywhere: zero saturation, value inside the smoke
		// band.
		img := flatImage(100, 100, color.RGBA{R: 150, G: 150, B: 150, A: 255})

		finding := FireSmoke(img)
		assert.True(t, finding.Detected)
		assert.InDelta(t, 1.0, finding.Metrics["smoke_fraction"], 0.01)
		assert.InDelta(t, 6.0, finding.RiskContribution, 0.1)
	})

	t.Run("black frame is clean", func(t *testing.T) {
		t.Parallel()
		finding := FireSmoke(flatImage(64, 64, color.RGBA{A: 255}))
		assert.False(t, finding.Detected)
		assert.Zero(t, finding.RiskContribution)
	})
}

func TestCrowdDensity(t *testing.T) {
	t.Parallel()

	t.Run("grid of small shapes detected", func(t *testing.T) {
		t.Parallel()
		// 2x2 white dots every 10 pixels on black; each dot's edge ring
		// is one person-plausible shape.
		img := flatImage(100, 100, color.RGBA{A: 255})
		white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		for cy := 5; cy < 95; cy += 10 {
			for cx := 5; cx < 95; cx += 10 {
				img.SetRGBA(cx, cy, white)
				img.SetRGBA(cx+1, cy, white)
				img.SetRGBA(cx, cy+1, white)
				img.SetRGBA(cx+1, cy+1, white)
			}
		}

		finding := CrowdDensity(img)
		assert.True(t, finding.Detected)
		assert.Greater(t, finding.Metrics["shapes"], 20.0)
		assert.InDelta(t, 6.0, finding.RiskContribution, 0.01, "dense grid saturates the cap")
	})

	t.Run("flat frame has no shapes", func(t *testing.T) {
		t.Parallel()
		finding := CrowdDensity(flatImage(100, 100, color.RGBA{R: 90, G: 90, B: 90, A: 255}))
		assert.False(t, finding.Detected)
		assert.Zero(t, finding.Metrics["shapes"])
		assert.Zero(t, finding.RiskContribution)
	})
}

func TestMilitaryVehicles(t *testing.T) {
	t.Parallel()

	t.Run("elongated textured block counted", func(t *testing.T) {
		t.Parallel()
		// A 36x12 checkerboard block reads as one solid high-gradient
		// component with a vehicle-like aspect ratio.
		img := flatImage(128, 128, color.RGBA{A: 255})
		white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		for y := 40; y < 52; y++ {
			for x := 30; x < 66; x++ {
				if (x+y)%2 == 0 {
					img.SetRGBA(x, y, white)
				}
			}
		}

		finding := MilitaryVehicles(img)
		assert.True(t, finding.Detected)
		assert.GreaterOrEqual(t, finding.Metrics["vehicle_shapes"], 1.0)
		assert.GreaterOrEqual(t, finding.RiskContribution, 2.0)
		assert.LessOrEqual(t, finding.RiskContribution, 7.0)
	})

	t.Run("each separate block counted once", func(t *testing.T) {
		t.Parallel()
		img := flatImage(128, 128, color.RGBA{A: 255})
		white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		for _, top := range []int{20, 90} {
			for y := top; y < top+12; y++ {
				for x := 30; x < 66; x++ {
					if (x+y)%2 == 0 {
						img.SetRGBA(x, y, white)
					}
				}
			}
		}

		finding := MilitaryVehicles(img)
		assert.True(t, finding.Detected)
		assert.Equal(t, 2.0, finding.Metrics["vehicle_shapes"])
		assert.InDelta(t, 4.0, finding.RiskContribution, 0.01)
	})

	t.Run("flat frame has no vehicles", func(t *testing.T) {
		t.Parallel()
		finding := MilitaryVehicles(flatImage(128, 128, color.RGBA{R: 60, G: 60, B: 60, A: 255}))
		assert.False(t, finding.Detected)
		assert.Zero(t, finding.RiskContribution)
	})
}

func TestStructuralDamage(t *testing.T) {
	t.Parallel()

	t.Run("noise frame trips both thresholds", func(t *testing.T) {
		t.Parallel()
		finding := StructuralDamage(noiseImage(128, 128, 7))
		assert.True(t, finding.Detected)
		assert.Greater(t, finding.Metrics["edge_density"], damageEdgeDetected)
		assert.Greater(t, finding.Metrics["laplacian_variance"], damageVarianceDetect)
		assert.InDelta(t, 5.0, finding.RiskContribution, 0.01, "noise saturates the cap")
	})

	t.Run("flat frame is clean", func(t *testing.T) {
		t.Parallel()
		finding := StructuralDamage(flatImage(128, 128, color.RGBA{R: 120, G: 120, B: 120, A: 255}))
		assert.False(t, finding.Detected)
		assert.Zero(t, finding.RiskContribution)
	})
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	t.Run("one finding per detector in fixed order", func(t *testing.T) {
		t.Parallel()
		findings, err := RunAll(context.Background(), noiseImage(96, 96, 3))
		require.NoError(t, err)
		require.Len(t, findings, 4)

		names := []string{}
		for _, f := range findings {
			names = append(names, f.Detector)
			assert.GreaterOrEqual(t, f.RiskContribution, 0.0)
			assert.LessOrEqual(t, f.RiskContribution, 10.0)
			assert.GreaterOrEqual(t, f.Confidence, 0.0)
			assert.LessOrEqual(t, f.Confidence, 1.0)
			assert.NotEmpty(t, f.Description)
		}
		assert.Equal(t, []string{"crowd_density", "fire_smoke", "military_vehicles", "structural_damage"}, names)
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := RunAll(ctx, flatImage(32, 32, color.RGBA{A: 255}))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("large frames are downscaled before analysis", func(t *testing.T) {
		t.Parallel()
		frame := analysisFrame(flatImage(1024, 512, color.RGBA{A: 255}))
		assert.Equal(t, 256, frame.Rect.Dx())
		assert.Equal(t, 128, frame.Rect.Dy())
	})
}
