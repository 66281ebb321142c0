package patterns

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// maxAnalysisDim bounds the working resolution of the heuristic detectors.
// Larger frames are downscaled before analysis so the pixel passes stay
// cheap regardless of input size.
const maxAnalysisDim = 256

// grayPlane is a float64 luminance raster in [0,255].
type grayPlane struct {
	w, h int
	pix  []float64
}

func newGrayPlane(w, h int) *grayPlane {
	return &grayPlane{w: w, h: h, pix: make([]float64, w*h)}
}

func (p *grayPlane) at(x, y int) float64 { return p.pix[y*p.w+x] }

// analysisFrame downscales img to the working resolution and returns it as
// an RGBA raster.
func analysisFrame(img image.Image) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxAnalysisDim || h > maxAnalysisDim {
		scale := float64(maxAnalysisDim) / float64(max(w, h))
		w = max(1, int(float64(w)*scale))
		h = max(1, int(float64(h)*scale))
	}
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(frame, frame.Bounds(), img, b, xdraw.Src, nil)
	return frame
}

// toGray converts an RGBA raster to a luminance plane using the standard
// Rec. 601 weights.
func toGray(frame *image.RGBA) *grayPlane {
	w, h := frame.Rect.Dx(), frame.Rect.Dy()
	plane := newGrayPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := frame.PixOffset(x, y)
			r := float64(frame.Pix[i])
			g := float64(frame.Pix[i+1])
			b := float64(frame.Pix[i+2])
			plane.pix[y*w+x] = 0.299*r + 0.587*g + 0.114*b
		}
	}
	return plane
}

// sobelMagnitude computes the gradient magnitude plane with 3x3 Sobel
// kernels. Border pixels are left at zero.
func sobelMagnitude(gray *grayPlane) *grayPlane {
	out := newGrayPlane(gray.w, gray.h)
	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			gx := -gray.at(x-1, y-1) + gray.at(x+1, y-1) +
				-2*gray.at(x-1, y) + 2*gray.at(x+1, y) +
				-gray.at(x-1, y+1) + gray.at(x+1, y+1)
			gy := -gray.at(x-1, y-1) - 2*gray.at(x, y-1) - gray.at(x+1, y-1) +
				gray.at(x-1, y+1) + 2*gray.at(x, y+1) + gray.at(x+1, y+1)
			out.pix[y*out.w+x] = math.Hypot(gx, gy)
		}
	}
	return out
}

// edgeMask thresholds a gradient magnitude plane into a binary mask.
func edgeMask(grad *grayPlane, threshold float64) []bool {
	mask := make([]bool, len(grad.pix))
	for i, v := range grad.pix {
		mask[i] = v >= threshold
	}
	return mask
}

// absLaplacian computes the absolute 4-neighbor Laplacian response plane.
// It responds inside fine high-frequency texture where opposing Sobel terms
// cancel, a checkerboard being the degenerate case. Border pixels stay zero.
func absLaplacian(gray *grayPlane) *grayPlane {
	out := newGrayPlane(gray.w, gray.h)
	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			lap := gray.at(x-1, y) + gray.at(x+1, y) +
				gray.at(x, y-1) + gray.at(x, y+1) - 4*gray.at(x, y)
			out.pix[y*out.w+x] = math.Abs(lap)
		}
	}
	return out
}

// dilateMask grows a mask by one pixel in the 4-neighborhood.
func dilateMask(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for i, set := range mask {
		if !set {
			continue
		}
		out[i] = true
		x, y := i%w, i/w
		if x > 0 {
			out[i-1] = true
		}
		if x < w-1 {
			out[i+1] = true
		}
		if y > 0 {
			out[i-w] = true
		}
		if y < h-1 {
			out[i+w] = true
		}
	}
	return out
}

// erodeMask shrinks a mask by one pixel in the 4-neighborhood. Frame borders
// count as unset.
func erodeMask(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for i, set := range mask {
		if !set {
			continue
		}
		x, y := i%w, i/w
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			continue
		}
		if mask[i-1] && mask[i+1] && mask[i-w] && mask[i+w] {
			out[i] = true
		}
	}
	return out
}

// closeMask performs a morphological closing (rounds of dilation followed by
// the same number of erosions) so outlined or speckled shapes become solid
// connected components.
func closeMask(mask []bool, w, h, rounds int) []bool {
	for i := 0; i < rounds; i++ {
		mask = dilateMask(mask, w, h)
	}
	for i := 0; i < rounds; i++ {
		mask = erodeMask(mask, w, h)
	}
	return mask
}

// maskFraction reports the fraction of set pixels in a mask.
func maskFraction(mask []bool) float64 {
	if len(mask) == 0 {
		return 0
	}
	count := 0
	for _, set := range mask {
		if set {
			count++
		}
	}
	return float64(count) / float64(len(mask))
}

// laplacianVariance measures local texture as the variance of the 4-neighbor
// Laplacian response. High values indicate sharp, busy texture.
func laplacianVariance(gray *grayPlane) float64 {
	if gray.w < 3 || gray.h < 3 {
		return 0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < gray.h-1; y++ {
		for x := 1; x < gray.w-1; x++ {
			lap := gray.at(x-1, y) + gray.at(x+1, y) +
				gray.at(x, y-1) + gray.at(x, y+1) - 4*gray.at(x, y)
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// rgbToHSV converts 8-bit RGB to hue [0,360), saturation [0,1], value [0,1].
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

// region is one connected component of a binary mask.
type region struct {
	area                   int
	minX, minY, maxX, maxY int
}

func (r region) boxW() int { return r.maxX - r.minX + 1 }
func (r region) boxH() int { return r.maxY - r.minY + 1 }

// fillRatio is the component area over its bounding box area; near 1 means
// a solid, roughly rectangular blob.
func (r region) fillRatio() float64 {
	return float64(r.area) / float64(r.boxW()*r.boxH())
}

// connectedRegions labels 4-connected components of a binary mask with an
// iterative flood fill and returns per-component statistics.
func connectedRegions(mask []bool, w, h int) []region {
	visited := make([]bool, len(mask))
	var regions []region
	stack := make([]int, 0, 256)

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		reg := region{minX: w, minY: h, maxX: -1, maxY: -1}
		stack = append(stack[:0], start)
		visited[start] = true

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w

			reg.area++
			reg.minX = min(reg.minX, x)
			reg.maxX = max(reg.maxX, x)
			reg.minY = min(reg.minY, y)
			reg.maxY = max(reg.maxY, y)

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
		regions = append(regions, reg)
	}
	return regions
}
