// Package pipeline wires acquisition, detection, the heuristic analyzers,
// the damage path and the scorer into one assessment run per image, plus a
// bounded-worker batch mode with per-item failure isolation.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/observability"
	"github.com/AlfonsoCifuentes/riskmap-vision/patterns"
	"github.com/AlfonsoCifuentes/riskmap-vision/risk"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
	"github.com/AlfonsoCifuentes/riskmap-vision/vision"
)

// DefaultBatchWorkers bounds concurrent batch items. The detector wraps a
// single loaded model instance, so unbounded fan-out buys nothing.
const DefaultBatchWorkers = 4

// partialConfidenceFactor scales down the overall confidence when the
// detector is unavailable and only the heuristic findings contribute.
const partialConfidenceFactor = 0.6

// Request describes one assessment: where to look and what optional text
// context to correlate against.
type Request struct {
	Center       geo.Point `json:"center"`
	BufferMeters float64   `json:"bufferMeters"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	Providers    []string  `json:"providers,omitempty"`
	Context      string    `json:"context,omitempty"`
}

// Pipeline runs the full visual risk assessment for single requests and
// batches. All stages are injected so tests can substitute any of them.
type Pipeline struct {
	client   *imagery.Client
	detector *vision.Detector
	scorer   *risk.Scorer
	damage   *damage.Assessor
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	defaultWidth  int
	defaultHeight int
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDamageAssessor enables the damage classification path.
func WithDamageAssessor(a *damage.Assessor) Option {
	return func(p *Pipeline) { p.damage = a }
}

// WithImageSize sets the pixel dimensions used for requests that leave them
// unset. Zero values keep the imagery package defaults.
func WithImageSize(width, height int) Option {
	return func(p *Pipeline) {
		p.defaultWidth = width
		p.defaultHeight = height
	}
}

// New builds a pipeline. The detector may wrap a nil backend; the run then
// degrades to heuristics only and the result is flagged partial.
func New(client *imagery.Client, detector *vision.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:   client,
		detector: detector,
		scorer:   risk.NewScorer(),
		clock:    clockwork.NewRealClock(),
		logger:   utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Assess runs the full pipeline for one request. Acquisition failure is the
// only hard error; a missing detection model degrades the result instead of
// failing it.
func (p *Pipeline) Assess(ctx context.Context, req Request) (*models.RiskAssessment, error) {
	start := p.clock.Now()

	imgReq := imagery.NewRequest(req.Center, req.BufferMeters)
	if p.defaultWidth > 0 {
		imgReq.Width = p.defaultWidth
	}
	if p.defaultHeight > 0 {
		imgReq.Height = p.defaultHeight
	}
	if req.Width > 0 {
		imgReq.Width = req.Width
	}
	if req.Height > 0 {
		imgReq.Height = req.Height
	}
	imgReq.Providers = req.Providers

	cached, err := p.client.Acquire(ctx, imgReq)
	if err != nil {
		return nil, fmt.Errorf("acquire imagery: %w", err)
	}

	frame, _, err := image.Decode(bytes.NewReader(cached.Data))
	if err != nil {
		return nil, fmt.Errorf("decode acquired image: %w", err)
	}

	assessment, err := p.analyze(ctx, frame, req.Context)
	if err != nil {
		return nil, err
	}

	lat, lon := req.Center.Lat, req.Center.Lon
	assessment.ID = fmt.Sprintf("va-%08x", utils.GenerateUniqueID())
	assessment.Timestamp = p.clock.Now().UTC()
	assessment.Latitude = &lat
	assessment.Longitude = &lon
	assessment.ImageSource = cached.Source
	assessment.ImageContentHash = cached.ContentHash
	assessment.ResolutionMPx = cached.ResolutionMPx
	assessment.ServedFromCache = cached.ServedFromCache
	assessment.LatencyMs = float64(p.clock.Now().Sub(start)) / float64(time.Millisecond)

	p.observe(assessment)
	p.logger.Info("assessment complete",
		slog.String("id", assessment.ID),
		slog.Float64("score", assessment.VisualRiskScore),
		slog.String("level", string(assessment.RiskLevel)),
		slog.String("source", assessment.ImageSource),
		slog.Bool("partial", assessment.Partial))
	return assessment, nil
}

// analyze runs detection and the heuristic analyzers in parallel over one
// decoded frame, then fuses the outputs.
func (p *Pipeline) analyze(ctx context.Context, frame image.Image, contextText string) (*models.RiskAssessment, error) {
	var (
		detections []models.Detection
		findings   []models.PatternFinding
		partial    bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dets, err := p.detector.Detect(frame)
		if err != nil {
			if errorsIsModelUnavailable(err) {
				partial = true
				return nil
			}
			return fmt.Errorf("object detection: %w", err)
		}
		detections = dets
		return nil
	})
	g.Go(func() error {
		found, err := patterns.RunAll(gctx, frame)
		if err != nil {
			return fmt.Errorf("pattern detectors: %w", err)
		}
		findings = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assessment := p.scorer.Score(detections, findings, contextText)
	assessment.ObjectSummary = p.detector.Summarize(detections)
	if partial {
		assessment.Partial = true
		assessment.Confidence *= partialConfidenceFactor
	}

	if p.damage != nil {
		assessment.Damage = p.damage.Assess(frame)
	}
	return &assessment, nil
}

// AssessBatch runs many requests over a bounded worker pool. A failed item
// never aborts the batch: its slot carries a zero-score UNKNOWN assessment
// with the error recorded.
func (p *Pipeline) AssessBatch(ctx context.Context, reqs []Request, workers int) []models.RiskAssessment {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}

	results := make([]models.RiskAssessment, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			assessment, err := p.Assess(ctx, req)
			if err != nil {
				p.logger.Warn("batch item failed",
					slog.Int("index", i),
					slog.Any("error", err))
				lat, lon := req.Center.Lat, req.Center.Lon
				results[i] = models.RiskAssessment{
					ID:        fmt.Sprintf("va-%08x", utils.GenerateUniqueID()),
					Timestamp: p.clock.Now().UTC(),
					RiskLevel: models.RiskUnknown,
					Latitude:  &lat,
					Longitude: &lon,
					Errors:    []string{err.Error()},
				}
				p.countBatchItem("error")
				return nil
			}
			results[i] = *assessment
			p.countBatchItem("ok")
			return nil
		})
	}
	g.Wait()
	return results
}

func (p *Pipeline) observe(a *models.RiskAssessment) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if a.Partial {
		outcome = "partial"
	}
	p.metrics.AssessmentsTotal.WithLabelValues(outcome).Inc()
	p.metrics.AssessmentSeconds.Observe(a.LatencyMs / 1000)
}

func (p *Pipeline) countBatchItem(outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.BatchItems.WithLabelValues(outcome).Inc()
}

func errorsIsModelUnavailable(err error) bool {
	return errors.Is(err, vision.ErrModelUnavailable)
}
