package imagery

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"
)

const (
	tileMapName    = "tilemap"
	tileMapBaseURL = "https://api.maptiler.com"
)

// TileMapProvider is the secondary provider: a static tile-map API addressed
// by center + zoom with an API key in the query string.
type TileMapProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewTileMapProvider builds the secondary provider. An empty baseURL falls
// back to the public endpoint; an empty key yields an unavailable provider.
func NewTileMapProvider(baseURL, apiKey string, timeout time.Duration) *TileMapProvider {
	if baseURL == "" {
		baseURL = tileMapBaseURL
	}
	return newTileMapProvider(baseURL, apiKey, timeout)
}

func newTileMapProvider(baseURL, apiKey string, timeout time.Duration) *TileMapProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TileMapProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *TileMapProvider) Name() string { return tileMapName }

func (p *TileMapProvider) Available() bool { return p.apiKey != "" }

// zoomForBBox picks the web-mercator zoom level whose ground resolution best
// matches rendering the request's bbox into the requested pixel width.
func zoomForBBox(req ImageRequest) int {
	widthMeters := req.BBox.WidthMeters()
	if widthMeters <= 0 || req.Width <= 0 {
		return 15
	}
	targetMPerPx := widthMeters / float64(req.Width)

	// Zoom 0 covers the equator circumference in 256 pixels.
	const equatorMeters = 40075016.686
	latRad := req.BBox.Center().Lat * math.Pi / 180
	zoom := math.Log2(equatorMeters * math.Cos(latRad) / (256 * targetMPerPx))

	z := int(math.Round(zoom))
	if z < 1 {
		z = 1
	}
	if z > 19 {
		z = 19
	}
	return z
}

// Fetch retrieves a static map image centered on the request's bbox.
func (p *TileMapProvider) Fetch(ctx context.Context, req ImageRequest) ([]byte, error) {
	req = req.normalized()
	center := req.BBox.Center()
	zoom := zoomForBBox(req)

	endpoint := fmt.Sprintf("%s/maps/satellite/static/%.6f,%.6f,%d/%dx%d.png",
		p.baseURL, center.Lon, center.Lat, zoom, req.Width, req.Height)
	params := url.Values{"key": {p.apiKey}}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Provider: p.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &NetworkError{Provider: p.Name(), Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Provider: p.Name(), Err: err}
	}
	return data, nil
}
