package imagery

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
)

// Default pixel dimensions used when the caller leaves them unset.
const (
	DefaultWidth  = 512
	DefaultHeight = 512
)

// ImageRequest describes one image to acquire. Requests are value types; two
// requests with the same geometric and provider-relevant parameters always
// produce the same cache key.
type ImageRequest struct {
	BBox   geo.BBox `json:"bbox"`
	Width  int      `json:"width"`
	Height int      `json:"height"`

	// Providers is the ordered priority list of provider names to try.
	// Empty means "use the client's configured chain".
	Providers []string `json:"providers,omitempty"`
}

// NewRequest builds a request around a center coordinate with a buffer radius
// in meters.
func NewRequest(center geo.Point, bufferMeters float64) ImageRequest {
	return ImageRequest{
		BBox:   geo.FromCenter(center, bufferMeters),
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// NewRequestForBBox builds a request for an explicit bounding box.
func NewRequestForBBox(bbox geo.BBox) ImageRequest {
	return ImageRequest{BBox: bbox, Width: DefaultWidth, Height: DefaultHeight}
}

// normalized returns a copy with defaults applied.
func (r ImageRequest) normalized() ImageRequest {
	if r.Width <= 0 {
		r.Width = DefaultWidth
	}
	if r.Height <= 0 {
		r.Height = DefaultHeight
	}
	return r
}

// Validate checks the request before any provider is contacted.
func (r ImageRequest) Validate() error {
	if !r.BBox.Valid() {
		return fmt.Errorf("%w: bbox %s", ErrInvalidRequest, r.BBox)
	}
	const maxDim = 4096
	if r.Width > maxDim || r.Height > maxDim {
		return fmt.Errorf("%w: dimensions %dx%d exceed %d", ErrInvalidRequest, r.Width, r.Height, maxDim)
	}
	return nil
}

// CacheKey returns a deterministic hash over every parameter that influences
// the acquired image. Identical requests always resolve to the same key.
func (r ImageRequest) CacheKey() string {
	r = r.normalized()
	canonical := fmt.Sprintf("bbox=%.8f,%.8f,%.8f,%.8f|w=%d|h=%d|p=%s",
		r.BBox.MinLon, r.BBox.MinLat, r.BBox.MaxLon, r.BBox.MaxLat,
		r.Width, r.Height,
		strings.Join(r.Providers, ","),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// CachedImage is an acquired image plus acquisition metadata. Immutable once
// written to the cache.
type CachedImage struct {
	Data            []byte    `json:"-"`
	ContentHash     string    `json:"contentHash"`
	Source          string    `json:"source"`
	ResolutionMPx   float64   `json:"resolutionMetersPerPixel"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	AcquiredAt      time.Time `json:"acquiredAt"`
	ServedFromCache bool      `json:"servedFromCache"`
}
