package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	sentinelHubName     = "sentinelhub"
	sentinelHubBaseURL  = "https://services.sentinel-hub.com"
	sentinelHubTokenURL = sentinelHubBaseURL + "/oauth/token"

	// trueColorEvalscript renders the visible bands as a plain RGB image,
	// which is what every downstream detector expects.
	trueColorEvalscript = `//VERSION=3
function setup() {
  return { input: ["B02", "B03", "B04"], output: { bands: 3 } };
}
function evaluatePixel(sample) {
  return [2.5 * sample.B04, 2.5 * sample.B03, 2.5 * sample.B02];
}`
)

// SentinelHubProvider is the primary high-resolution imagery provider. It
// authenticates with OAuth2 client credentials and renders imagery through the
// process API.
type SentinelHubProvider struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenManager
	configured bool
}

// NewSentinelHubProvider builds the primary provider. Empty baseURL or
// tokenURL fall back to the public endpoints; empty credentials yield a
// provider that reports itself unavailable instead of failing requests.
func NewSentinelHubProvider(baseURL, tokenURL, clientID, clientSecret string, timeout time.Duration, clock clockwork.Clock) *SentinelHubProvider {
	if baseURL == "" {
		baseURL = sentinelHubBaseURL
	}
	if tokenURL == "" {
		tokenURL = sentinelHubTokenURL
	}
	return newSentinelHubProvider(baseURL, tokenURL, clientID, clientSecret, timeout, clock)
}

func newSentinelHubProvider(baseURL, tokenURL, clientID, clientSecret string, timeout time.Duration, clock clockwork.Clock) *SentinelHubProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SentinelHubProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     newTokenManager(clientID, clientSecret, tokenURL, clock),
		configured: clientID != "" && clientSecret != "",
	}
}

func (p *SentinelHubProvider) Name() string { return sentinelHubName }

func (p *SentinelHubProvider) Available() bool { return p.configured }

// processRequest mirrors the subset of the process API body we use: a bbox in
// EPSG:4326, output pixel dimensions and a rendering script.
type processRequest struct {
	Input struct {
		Bounds struct {
			BBox       []float64 `json:"bbox"`
			Properties struct {
				CRS string `json:"crs"`
			} `json:"properties"`
		} `json:"bounds"`
		Data []struct {
			Type string `json:"type"`
		} `json:"data"`
	} `json:"input"`
	Output struct {
		Width     int `json:"width"`
		Height    int `json:"height"`
		Responses []struct {
			Identifier string `json:"identifier"`
			Format     struct {
				Type string `json:"type"`
			} `json:"format"`
		} `json:"responses"`
	} `json:"output"`
	Evalscript string `json:"evalscript"`
}

func buildProcessRequest(req ImageRequest) processRequest {
	var body processRequest
	body.Input.Bounds.BBox = []float64{req.BBox.MinLon, req.BBox.MinLat, req.BBox.MaxLon, req.BBox.MaxLat}
	body.Input.Bounds.Properties.CRS = "http://www.opengis.net/def/crs/EPSG/0/4326"
	body.Input.Data = append(body.Input.Data, struct {
		Type string `json:"type"`
	}{Type: "sentinel-2-l2a"})
	body.Output.Width = req.Width
	body.Output.Height = req.Height
	body.Output.Responses = append(body.Output.Responses, struct {
		Identifier string `json:"identifier"`
		Format     struct {
			Type string `json:"type"`
		} `json:"format"`
	}{Identifier: "default", Format: struct {
		Type string `json:"type"`
	}{Type: "image/png"}})
	body.Evalscript = trueColorEvalscript
	return body
}

// Fetch renders the requested bbox through the process API.
func (p *SentinelHubProvider) Fetch(ctx context.Context, req ImageRequest) ([]byte, error) {
	token, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return nil, &AuthError{Provider: p.Name(), Err: err}
	}

	payload, err := json.Marshal(buildProcessRequest(req.normalized()))
	if err != nil {
		return nil, fmt.Errorf("marshal process request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/process", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/png")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &NetworkError{Provider: p.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Token may have been revoked server-side; drop it so the next
		// call starts clean.
		p.tokens.Invalidate()
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
