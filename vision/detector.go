package vision

import (
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Detector wraps one detection backend behind a stateless interface. The
// backend holds a single loaded model instance that is not guaranteed safe
// for concurrent inference, so Detect serializes access with a mutex.
type Detector struct {
	mu            sync.Mutex
	backend       Backend
	classes       *ClassTable
	rules         ThreatRules
	minConfidence float64
	logger        *slog.Logger
}

// DetectorOption customizes a Detector.
type DetectorOption func(*Detector)

// WithMinConfidence drops raw detections below the threshold.
func WithMinConfidence(min float64) DetectorOption {
	return func(d *Detector) { d.minConfidence = min }
}

// WithThreatRules overrides the default threshold rules.
func WithThreatRules(rules ThreatRules) DetectorOption {
	return func(d *Detector) { d.rules = rules }
}

// NewDetector builds a detector. A nil backend is allowed and yields
// ErrModelUnavailable from Detect, letting the pipeline degrade gracefully.
func NewDetector(backend Backend, classes *ClassTable, opts ...DetectorOption) *Detector {
	if classes == nil {
		classes = DefaultClassTable()
	}
	d := &Detector{
		backend:       backend,
		classes:       classes,
		rules:         DefaultThreatRules(),
		minConfidence: 0.25,
		logger:        utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Available reports whether a backend is loaded.
func (d *Detector) Available() bool { return d.backend != nil }

// BackendName names the loaded backend, or "none".
func (d *Detector) BackendName() string {
	if d.backend == nil {
		return "none"
	}
	return d.backend.Name()
}

// Classes exposes the class table the detector resolves IDs against.
func (d *Detector) Classes() *ClassTable { return d.classes }

// Detect runs the model over the image and resolves every raw detection into
// a semantic Detection, sorted by descending confidence.
func (d *Detector) Detect(img image.Image) ([]models.Detection, error) {
	if d.backend == nil {
		return nil, ErrModelUnavailable
	}
	if img == nil {
		return nil, fmt.Errorf("vision: nil image")
	}

	d.mu.Lock()
	raw, err := d.backend.Detect(img)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", d.backend.Name(), err)
	}

	detections := make([]models.Detection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence < d.minConfidence {
			continue
		}
		detections = append(detections, d.classes.toDetection(r))
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	d.logger.Debug("object detection complete",
		slog.String("backend", d.backend.Name()),
		slog.Int("raw", len(raw)),
		slog.Int("kept", len(detections)))
	return detections, nil
}

// Summarize applies the detector's threat rules to a detection list.
func (d *Detector) Summarize(detections []models.Detection) models.ObjectSummary {
	return d.rules.Summarize(detections)
}
