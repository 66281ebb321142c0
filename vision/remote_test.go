package vision

import (
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteBackendDetect(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/detect", r.URL.Path)

		file, _, err := r.FormFile("image")
		require.NoError(t, err)
		file.Close()

		json.NewEncoder(w).Encode(remoteDetectResponse{
			Detections: []remoteDetection{
				{ClassID: 2, Confidence: 0.91, X: 0.1, Y: 0.2, W: 0.3, H: 0.4},
			},
		})
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL)
	assert.Equal(t, "remote", backend.Name())

	raw, err := backend.Detect(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, 2, raw[0].ClassID)
	assert.InDelta(t, 0.91, raw[0].Confidence, 1e-9)
}

func TestRemoteBackendUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL)
	_, err := backend.Detect(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelUnavailable))

	down := NewRemoteBackend("http://127.0.0.1:1")
	_, err = down.Detect(image.NewRGBA(image.Rect(0, 0, 8, 8)))
	assert.True(t, errors.Is(err, ErrModelUnavailable))
}

func TestRemoteBackendHealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL)
	assert.NoError(t, backend.HealthCheck())

	down := NewRemoteBackend("http://127.0.0.1:1")
	assert.Error(t, down.HealthCheck())
}
