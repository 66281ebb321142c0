// Package patterns implements the four heuristic pixel-level analyzers:
// crowd density, fire and smoke color masses, military vehicle shapes and
// structural damage texture.
//
// Algorithm notes
//
// Every detector works on a luminance or HSV view of a downscaled frame and
// derives one PatternFinding from fixed-threshold measurements:
//
//   - crowd: Sobel edges, connected components filtered to a person-plausible
//     area band, density = shapes per 100x100 pixel block
//   - fire/smoke: two fixed HSV color-range masks, scored by pixel fraction
//   - vehicles: large solid elongated components of the edge-closed mask
//   - structural damage: edge density combined with Laplacian texture variance
//
// The detectors are stateless and never mutate shared data, so they are safe
// to evaluate concurrently on the same image. The thresholds are hand-tuned
// policy constants; treat them as configuration when recalibrating.
package patterns

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

const (
	crowdEdgeThreshold   = 120.0
	crowdMinShapeArea    = 6
	crowdMaxShapeArea    = 400
	crowdDensityDetected = 2.0

	fireSatMin       = 0.45
	fireValMin       = 0.45
	smokeSatMax      = 0.18
	smokeValMin      = 0.40
	smokeValMax      = 0.85
	fireFracDetected = 0.01
	smokeFracDetect  = 0.05

	vehicleEdgeThreshold = 100.0
	vehicleMinAreaFrac   = 0.003
	vehicleAspectMin     = 1.5
	vehicleAspectMax     = 4.5
	vehicleMinFillRatio  = 0.40

	damageEdgeThreshold  = 110.0
	damageEdgeDetected   = 0.15
	damageVarianceDetect = 500.0
)

// CrowdDensity counts person-plausible edge shapes and scores their density
// per normalized image area.
func CrowdDensity(img image.Image) models.PatternFinding {
	frame := analysisFrame(img)
	gray := toGray(frame)
	mask := edgeMask(sobelMagnitude(gray), crowdEdgeThreshold)

	shapes := 0
	for _, reg := range connectedRegions(mask, gray.w, gray.h) {
		if reg.area >= crowdMinShapeArea && reg.area <= crowdMaxShapeArea {
			shapes++
		}
	}

	// Shapes per 100x100 pixel block.
	normArea := float64(gray.w*gray.h) / 10000.0
	density := 0.0
	if normArea > 0 {
		density = float64(shapes) / normArea
	}

	detected := density > crowdDensityDetected
	finding := models.PatternFinding{
		Detector:         "crowd_density",
		Detected:         detected,
		RiskContribution: math.Min(6, density*0.5),
		Confidence:       clamp01(density / 10),
		Metrics: map[string]float64{
			"shapes":  float64(shapes),
			"density": density,
		},
	}
	if detected {
		finding.Description = fmt.Sprintf("dense concentration of person-sized shapes (%.1f per block)", density)
	} else {
		finding.Description = "no significant crowd concentration"
	}
	return finding
}

// FireSmoke measures the pixel fraction covered by fire-colored and
// smoke-colored HSV masks.
func FireSmoke(img image.Image) models.PatternFinding {
	frame := analysisFrame(img)
	w, h := frame.Rect.Dx(), frame.Rect.Dy()

	firePixels, smokePixels := 0, 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := frame.PixOffset(x, y)
			hue, sat, val := rgbToHSV(frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2])
			if (hue <= 50 || hue >= 330) && sat >= fireSatMin && val >= fireValMin {
				firePixels++
			} else if sat <= smokeSatMax && val >= smokeValMin && val <= smokeValMax {
				smokePixels++
			}
		}
	}

	total := float64(w * h)
	fireFrac := float64(firePixels) / total
	smokeFrac := float64(smokePixels) / total

	detected := fireFrac > fireFracDetected || smokeFrac > smokeFracDetect
	finding := models.PatternFinding{
		Detector:         "fire_smoke",
		Detected:         detected,
		RiskContribution: math.Min(8, fireFrac*100) + math.Min(6, smokeFrac*50),
		Confidence:       clamp01(math.Max(fireFrac, smokeFrac) * 10),
		Metrics: map[string]float64{
			"fire_fraction":  fireFrac,
			"smoke_fraction": smokeFrac,
		},
	}
	switch {
	case fireFrac > fireFracDetected:
		finding.Description = fmt.Sprintf("fire-colored region covers %.1f%% of frame", fireFrac*100)
	case smokeFrac > smokeFracDetect:
		finding.Description = fmt.Sprintf("smoke-colored region covers %.1f%% of frame", smokeFrac*100)
	default:
		finding.Description = "no fire or smoke signature"
	}
	return finding
}

// MilitaryVehicles counts large, solid, elongated components whose aspect
// ratio falls in the band typical of vehicles seen from above.
func MilitaryVehicles(img image.Image) models.PatternFinding {
	frame := analysisFrame(img)
	gray := toGray(frame)

	// Sobel misses the interior of fine regular texture (opposing kernel
	// terms cancel), so the mask takes the union with the Laplacian response
	// and is closed into solid components.
	mask := edgeMask(sobelMagnitude(gray), vehicleEdgeThreshold)
	for i, v := range absLaplacian(gray).pix {
		if v >= vehicleEdgeThreshold {
			mask[i] = true
		}
	}
	mask = closeMask(mask, gray.w, gray.h, 2)

	minArea := int(vehicleMinAreaFrac * float64(gray.w*gray.h))
	count := 0
	for _, reg := range connectedRegions(mask, gray.w, gray.h) {
		if reg.area < minArea {
			continue
		}
		long := math.Max(float64(reg.boxW()), float64(reg.boxH()))
		short := math.Min(float64(reg.boxW()), float64(reg.boxH()))
		if short == 0 {
			continue
		}
		aspect := long / short
		if aspect >= vehicleAspectMin && aspect <= vehicleAspectMax && reg.fillRatio() >= vehicleMinFillRatio {
			count++
		}
	}

	detected := count > 0
	finding := models.PatternFinding{
		Detector:         "military_vehicles",
		Detected:         detected,
		RiskContribution: math.Min(7, float64(count)*2),
		Confidence:       clamp01(float64(count) / 5),
		Metrics: map[string]float64{
			"vehicle_shapes": float64(count),
		},
	}
	if detected {
		finding.Description = fmt.Sprintf("%d elongated vehicle-scale shapes", count)
	} else {
		finding.Description = "no vehicle-scale rectangular shapes"
	}
	return finding
}

// StructuralDamage combines edge density with Laplacian texture variance;
// rubble and collapse show both at once.
func StructuralDamage(img image.Image) models.PatternFinding {
	frame := analysisFrame(img)
	gray := toGray(frame)

	edgeDensity := maskFraction(edgeMask(sobelMagnitude(gray), damageEdgeThreshold))
	variance := laplacianVariance(gray)

	detected := edgeDensity > damageEdgeDetected && variance > damageVarianceDetect
	contribution := math.Min(5, edgeDensity*20+variance/200)
	finding := models.PatternFinding{
		Detector:         "structural_damage",
		Detected:         detected,
		RiskContribution: contribution,
		Confidence:       clamp01(contribution / 5),
		Metrics: map[string]float64{
			"edge_density":       edgeDensity,
			"laplacian_variance": variance,
		},
	}
	if detected {
		finding.Description = fmt.Sprintf("irregular high-frequency texture (edge density %.2f, variance %.0f)", edgeDensity, variance)
	} else {
		finding.Description = "no structural damage signature"
	}
	return finding
}

// detectorFn is one stateless heuristic analyzer.
type detectorFn func(image.Image) models.PatternFinding

var allDetectors = []detectorFn{CrowdDensity, FireSmoke, MilitaryVehicles, StructuralDamage}

// RunAll evaluates every heuristic detector concurrently and returns the
// findings in the fixed detector order.
func RunAll(ctx context.Context, img image.Image) ([]models.PatternFinding, error) {
	findings := make([]models.PatternFinding, len(allDetectors))

	g, ctx := errgroup.WithContext(ctx)
	for i, fn := range allDetectors {
		i, fn := i, fn
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			findings[i] = fn(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
