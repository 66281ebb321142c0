package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// RemoteBackend communicates with an external inference service over HTTP.
// It lets deployments run the detection model in a separate process (for
// example a Python service holding a GPU) while the pipeline stays unchanged.
type RemoteBackend struct {
	serviceURL string
	client     *http.Client
}

// remoteDetection is one wire-format detection from the inference service
type remoteDetection struct {
	ClassID    int     `json:"classId"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

// remoteDetectResponse represents the response from the inference service
type remoteDetectResponse struct {
	Detections []remoteDetection `json:"detections"`
}

// NewRemoteBackend creates a backend against the given inference service URL
func NewRemoteBackend(serviceURL string) *RemoteBackend {
	if serviceURL == "" {
		serviceURL = "http://localhost:5002"
	}
	return &RemoteBackend{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

// Detect encodes the frame as PNG and sends it to the service's /detect
// endpoint. Transport and status errors are wrapped in ErrModelUnavailable so
// the pipeline degrades the same way it does for a missing local model.
func (b *RemoteBackend) Detect(img image.Image) ([]RawDetection, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "frame.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := b.serviceURL + "/detect"
	req, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: inference service unreachable: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: inference service returned status %d: %s", ErrModelUnavailable, resp.StatusCode, string(respBody))
	}

	var result remoteDetectResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}

	raw := make([]RawDetection, 0, len(result.Detections))
	for _, d := range result.Detections {
		raw = append(raw, RawDetection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			X:          d.X,
			Y:          d.Y,
			W:          d.W,
			H:          d.H,
		})
	}
	return raw, nil
}

// HealthCheck verifies the inference service is reachable
func (b *RemoteBackend) HealthCheck() error {
	resp, err := b.client.Get(b.serviceURL + "/health")
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
