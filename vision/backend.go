package vision

import (
	"errors"
	"image"
)

// ErrModelUnavailable is returned when no detection backend is loaded. The
// pipeline treats it as a soft failure: the run proceeds on the heuristic
// detectors alone and the result is flagged partial.
var ErrModelUnavailable = errors.New("vision: detection model unavailable")

// RawDetection is one model output before class names and semantic flags are
// attached. Box coordinates are normalized to [0,1].
type RawDetection struct {
	ClassID    int
	Confidence float64
	X, Y, W, H float64
}

// Backend runs a pretrained detection model over an image. Implementations
// are not required to be safe for concurrent inference; the Detector guards
// access with a lock.
type Backend interface {
	Name() string
	Detect(img image.Image) ([]RawDetection, error)
}
