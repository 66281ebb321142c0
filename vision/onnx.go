package vision

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	xdraw "golang.org/x/image/draw"
)

const (
	onnxInputSize = 640

	// Each detection row in the model output: cx, cy, w, h, confidence, class id.
	onnxRowStride = 6
	onnxMaxRows   = 300
)

// ONNXBackend runs an object detection model through onnxruntime. The
// session and its tensors are allocated once at load time and reused for
// every frame, so Detect must not be called concurrently; Detector already
// serializes access.
type ONNXBackend struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]

	mu sync.Mutex
}

// LoadONNXBackend initializes the onnxruntime environment and builds a
// session for the model at modelPath.
func LoadONNXBackend(modelPath string) (*ONNXBackend, error) {
	if modelPath == "" {
		return nil, errors.New("modelPath is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model file missing at %s: %v", ErrModelUnavailable, modelPath, err)
	}

	libPath := resolveSharedLibraryPath(filepath.Dir(modelPath))
	if libPath == "" {
		return nil, fmt.Errorf("%w: onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime", ErrModelUnavailable)
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnxruntime: %v", ErrModelUnavailable, err)
		}
	}

	inputShape := ort.NewShape(1, 3, onnxInputSize, onnxInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	outputShape := ort.NewShape(1, onnxMaxRows, onnxRowStride)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("set graph optimization level: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.Value{input},
		[]ort.Value{output},
		opts,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("%w: create onnx session: %v", ErrModelUnavailable, err)
	}

	return &ONNXBackend{session: session, input: input, output: output}, nil
}

func (b *ONNXBackend) Name() string { return "onnx" }

// Detect resizes the frame to the model's input size, runs inference and
// returns raw detections with boxes normalized to [0,1].
func (b *ONNXBackend) Detect(img image.Image) ([]RawDetection, error) {
	if b == nil || b.session == nil {
		return nil, ErrModelUnavailable
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	fillInputTensor(b.input.GetData(), img)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	raw := b.output.GetData()
	dets := make([]RawDetection, 0, 16)
	for row := 0; row+onnxRowStride <= len(raw); row += onnxRowStride {
		conf := float64(raw[row+4])
		if conf <= 0 {
			continue
		}
		cx := float64(raw[row]) / onnxInputSize
		cy := float64(raw[row+1]) / onnxInputSize
		w := float64(raw[row+2]) / onnxInputSize
		h := float64(raw[row+3]) / onnxInputSize
		dets = append(dets, RawDetection{
			ClassID:    int(raw[row+5]),
			Confidence: conf,
			X:          clamp01(cx - w/2),
			Y:          clamp01(cy - h/2),
			W:          clamp01(w),
			H:          clamp01(h),
		})
	}
	return dets, nil
}

// Close releases the session and its tensors.
func (b *ONNXBackend) Close() error {
	if b == nil || b.session == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.session.Destroy()
	b.input.Destroy()
	b.output.Destroy()
	b.session = nil
	return err
}

// fillInputTensor scales img to the model input size and writes it as
// planar RGB float32 in [0,1].
func fillInputTensor(dst []float32, img image.Image) {
	scaled := image.NewRGBA(image.Rect(0, 0, onnxInputSize, onnxInputSize))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	plane := onnxInputSize * onnxInputSize
	for y := 0; y < onnxInputSize; y++ {
		for x := 0; x < onnxInputSize; x++ {
			i := scaled.PixOffset(x, y)
			p := y*onnxInputSize + x
			dst[p] = float32(scaled.Pix[i]) / 255
			dst[plane+p] = float32(scaled.Pix[i+1]) / 255
			dst[2*plane+p] = float32(scaled.Pix[i+2]) / 255
		}
	}
}

// resolveSharedLibraryPath locates the onnxruntime shared library. The
// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable wins; otherwise
// common names and locations are probed.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.so",
		"onnxruntime.so",
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/usr/local/lib",
		"/usr/lib",
		"/opt/homebrew/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
