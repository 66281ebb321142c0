// Package damage implements the damage feature classifier: a fixed-length
// feature vector extracted from a normalized frame, a k-nearest prototype
// classifier over standardized features, and the train/persist/load
// lifecycle around it.
package damage

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// FeatureCount is the fixed length of the damage feature vector. It is
// versioned with the persisted model; a model trained on a different layout
// must be retrained, not reinterpreted.
const FeatureCount = 26

// featureFrameSize is the square side every input is resized to before
// extraction, which keeps the vector comparable across arbitrary input
// sizes.
const featureFrameSize = 128

const (
	featEdgeThreshold  = 110.0
	featLineMinRunFrac = 0.5
	featCornerResponse = 160.0
)

// Vector layout, kept in one place so the trainer, the heuristic labeler
// and the metadata report agree:
//
//	0      intensity mean
//	1      intensity stddev
//	2-3    gradient magnitude mean, stddev
//	4      Laplacian variance
//	5      edge density
//	6      edge segment count (per 100 pixels)
//	7-9    R, G, B channel means
//	10-12  R, G, B channel stddevs
//	13-15  hue, saturation, value means
//	16     straight line count
//	17     corner count (per 100 pixels)
//	18-25  8-bin intensity histogram (fractions)
const (
	idxIntensityMean = 0
	idxIntensityStd  = 1
	idxLapVariance   = 4
	idxEdgeDensity   = 5
	idxHistogram     = 18
)

// ExtractFeatures resizes img to the feature frame and computes the fixed
// vector. The result always has length FeatureCount.
func ExtractFeatures(img image.Image) []float64 {
	frame := image.NewRGBA(image.Rect(0, 0, featureFrameSize, featureFrameSize))
	xdraw.ApproxBiLinear.Scale(frame, frame.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	n := featureFrameSize * featureFrameSize
	gray := make([]float64, n)

	var sumR, sumG, sumB float64
	var sumR2, sumG2, sumB2 float64
	var sumH, sumS, sumV float64
	for y := 0; y < featureFrameSize; y++ {
		for x := 0; x < featureFrameSize; x++ {
			i := frame.PixOffset(x, y)
			r := float64(frame.Pix[i])
			g := float64(frame.Pix[i+1])
			b := float64(frame.Pix[i+2])
			gray[y*featureFrameSize+x] = 0.299*r + 0.587*g + 0.114*b

			sumR += r
			sumG += g
			sumB += b
			sumR2 += r * r
			sumG2 += g * g
			sumB2 += b * b

			h, s, v := rgbToHSV(frame.Pix[i], frame.Pix[i+1], frame.Pix[i+2])
			sumH += h
			sumS += s
			sumV += v
		}
	}

	features := make([]float64, FeatureCount)

	mean, std := meanStd(gray)
	features[idxIntensityMean] = mean
	features[idxIntensityStd] = std

	grad, lapVar := gradientAndLaplacian(gray)
	gMean, gStd := meanStd(grad)
	features[2] = gMean
	features[3] = gStd
	features[idxLapVariance] = lapVar

	mask := make([]bool, n)
	edgeCount := 0
	for i, v := range grad {
		if v >= featEdgeThreshold {
			mask[i] = true
			edgeCount++
		}
	}
	features[idxEdgeDensity] = float64(edgeCount) / float64(n)
	features[6] = float64(countSegments(mask, featureFrameSize, featureFrameSize)) * 100 / float64(n)

	fn := float64(n)
	features[7] = sumR / fn
	features[8] = sumG / fn
	features[9] = sumB / fn
	features[10] = stdFromSums(sumR, sumR2, fn)
	features[11] = stdFromSums(sumG, sumG2, fn)
	features[12] = stdFromSums(sumB, sumB2, fn)
	features[13] = sumH / fn
	features[14] = sumS / fn
	features[15] = sumV / fn

	features[16] = float64(countLines(mask, featureFrameSize, featureFrameSize))
	features[17] = float64(countCorners(gray, featureFrameSize, featureFrameSize)) * 100 / fn

	hist := make([]float64, 8)
	for _, v := range gray {
		bin := int(v / 32)
		if bin > 7 {
			bin = 7
		}
		hist[bin]++
	}
	for i, count := range hist {
		features[idxHistogram+i] = count / fn
	}

	return features
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

func stdFromSums(sum, sumSq, n float64) float64 {
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// gradientAndLaplacian computes the Sobel magnitude plane and the variance
// of the 4-neighbor Laplacian in one pass over the interior.
func gradientAndLaplacian(gray []float64) ([]float64, float64) {
	w := featureFrameSize
	h := featureFrameSize
	grad := make([]float64, len(gray))

	var lapSum, lapSq float64
	count := 0
	at := func(x, y int) float64 { return gray[y*w+x] }

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) +
				-2*at(x-1, y) + 2*at(x+1, y) +
				-at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			grad[y*w+x] = math.Hypot(gx, gy)

			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			lapSum += lap
			lapSq += lap * lap
			count++
		}
	}

	mean := lapSum / float64(count)
	return grad, lapSq/float64(count) - mean*mean
}

// countSegments counts 4-connected components of the edge mask.
func countSegments(mask []bool, w, h int) int {
	visited := make([]bool, len(mask))
	stack := make([]int, 0, 256)
	segments := 0

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		segments++
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			if x > 0 && mask[idx-1] && !visited[idx-1] {
				visited[idx-1] = true
				stack = append(stack, idx-1)
			}
			if x < w-1 && mask[idx+1] && !visited[idx+1] {
				visited[idx+1] = true
				stack = append(stack, idx+1)
			}
			if y > 0 && mask[idx-w] && !visited[idx-w] {
				visited[idx-w] = true
				stack = append(stack, idx-w)
			}
			if y < h-1 && mask[idx+w] && !visited[idx+w] {
				visited[idx+w] = true
				stack = append(stack, idx+w)
			}
		}
	}
	return segments
}

// countLines counts rows and columns where edge pixels form a run covering
// most of the axis, a proxy for intact straight structure.
func countLines(mask []bool, w, h int) int {
	lines := 0
	for y := 0; y < h; y++ {
		run := 0
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				run++
			}
		}
		if float64(run) >= featLineMinRunFrac*float64(w) {
			lines++
		}
	}
	for x := 0; x < w; x++ {
		run := 0
		for y := 0; y < h; y++ {
			if mask[y*w+x] {
				run++
			}
		}
		if float64(run) >= featLineMinRunFrac*float64(h) {
			lines++
		}
	}
	return lines
}

// countCorners counts interior pixels where both axis gradients respond
// strongly at once.
func countCorners(gray []float64, w, h int) int {
	at := func(x, y int) float64 { return gray[y*w+x] }
	corners := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := math.Abs(at(x+1, y) - at(x-1, y))
			gy := math.Abs(at(x, y+1) - at(x, y-1))
			if gx >= featCornerResponse && gy >= featCornerResponse {
				corners++
			}
		}
	}
	return corners
}

func rgbToHSV(r, g, b uint8) (float64, float64, float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	maxC := math.Max(rf, math.Max(gf, bf))
	minC := math.Min(rf, math.Min(gf, bf))
	delta := maxC - minC

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case maxC == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case maxC == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	sat := 0.0
	if maxC > 0 {
		sat = delta / maxC
	}
	return hue, sat, maxC
}
