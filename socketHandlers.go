package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"time"

	"github.com/AlfonsoCifuentes/riskmap-vision/chat"
	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
	"github.com/AlfonsoCifuentes/riskmap-vision/db"
	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/pipeline"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
	"github.com/AlfonsoCifuentes/riskmap-vision/vision"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	pipe         *pipeline.Pipeline
	store        db.Client
	detector     *vision.Detector
	assessor     *damage.Assessor
	summarizer   *chat.GeminiClient
	batchWorkers int
}

type modelInfo struct {
	DetectorBackend   string   `json:"detectorBackend"`
	DetectorAvailable bool     `json:"detectorAvailable"`
	ClassTableVersion string   `json:"classTableVersion"`
	ClassCount        int      `json:"classCount"`
	DamageModelLoaded bool     `json:"damageModelLoaded"`
	DamageClasses     []string `json:"damageClasses,omitempty"`
	DamageAccuracy    float64  `json:"damageAccuracy,omitempty"`
	StoredAssessments int      `json:"storedAssessments"`
}

type recentAssessmentsRequest struct {
	Limit int `json:"limit"`
}

func newSocketController(pipe *pipeline.Pipeline, store db.Client, detector *vision.Detector, assessor *damage.Assessor, summarizer *chat.GeminiClient, batchWorkers int) *socketController {
	return &socketController{
		pipe:         pipe,
		store:        store,
		detector:     detector,
		assessor:     assessor,
		summarizer:   summarizer,
		batchWorkers: batchWorkers,
	}
}

func (c *socketController) modelInfo() modelInfo {
	classes := c.detector.Classes()
	info := modelInfo{
		DetectorBackend:   c.detector.BackendName(),
		DetectorAvailable: c.detector.Available(),
		ClassTableVersion: classes.Version,
		ClassCount:        classes.Len(),
		DamageModelLoaded: c.assessor.ModelAvailable(),
	}
	if meta, ok := c.assessor.Metadata(); ok {
		info.DamageClasses = meta.Classes
		info.DamageAccuracy = meta.Accuracy
	}
	if total, err := c.store.TotalAssessments(); err == nil {
		info.StoredAssessments = total
	}
	return info
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	socket.Emit("modelInfo", c.modelInfo())
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

// runAssessment executes the pipeline, attaches the optional Gemini summary
// and persists the record. Used by both the socket and the HTTP paths.
func (c *socketController) runAssessment(ctx context.Context, req pipeline.Request) (*models.RiskAssessment, error) {
	logger := utils.GetLogger()

	assessment, err := c.pipe.Assess(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.summarizer != nil {
		summary, sumErr := c.summarizer.Summarize(ctx, assessment)
		if sumErr != nil {
			logger.WarnContext(ctx, "situation summary failed", slog.Any("error", xerrors.New(sumErr)))
		} else {
			assessment.SituationSummary = summary
		}
	}

	if storeErr := c.store.StoreAssessment(assessment); storeErr != nil {
		logger.ErrorContext(ctx, "failed to persist assessment",
			slog.String("assessmentID", assessment.ID),
			slog.Any("error", xerrors.New(storeErr)),
		)
	}

	return assessment, nil
}

// runBatch executes the batch pipeline and persists each result. Batch items
// never abort siblings, failed items come back as UNKNOWN records.
func (c *socketController) runBatch(ctx context.Context, reqs []pipeline.Request, workers int) []models.RiskAssessment {
	logger := utils.GetLogger()

	if workers <= 0 {
		workers = c.batchWorkers
	}
	results := c.pipe.AssessBatch(ctx, reqs, workers)
	for i := range results {
		if storeErr := c.store.StoreAssessment(&results[i]); storeErr != nil {
			logger.ErrorContext(ctx, "failed to persist batch assessment",
				slog.String("assessmentID", results[i].ID),
				slog.Any("error", xerrors.New(storeErr)),
			)
		}
	}
	return results
}

func (c *socketController) handleRequestAssessment(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	log.Printf("[handleRequestAssessment] Starting for socket %s, data length: %d\n", socket.ID(), len(payload))

	if payload == "" {
		logger.ErrorContext(ctx, "no data received in requestAssessment event")
		socket.Emit("analysisError", map[string]string{"message": "no assessment request received"})
		return
	}

	var req pipeline.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse assessment request", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid assessment request payload"})
		return
	}

	logger.InfoContext(ctx, "received assessment request",
		slog.String("socketID", socket.ID()),
		slog.Float64("lat", req.Center.Lat),
		slog.Float64("lon", req.Center.Lon),
		slog.Float64("bufferMeters", req.BufferMeters),
	)

	started := time.Now()
	reqCtx, cancel := context.WithTimeout(ctx, assessRequestTimeout)
	defer cancel()

	assessment, err := c.runAssessment(reqCtx, req)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "assessment failed",
			slog.String("socketID", socket.ID()),
			slog.Any("error", err),
		)
		socket.Emit("analysisError", map[string]string{"message": "assessment failed, imagery could not be acquired"})
		return
	}

	log.Printf("[handleRequestAssessment] Completed %s for socket %s in %.2fs: %s (%.2f)\n",
		assessment.ID, socket.ID(), time.Since(started).Seconds(), assessment.RiskLevel, assessment.VisualRiskScore)

	socket.Emit("assessment", assessment)
}

func (c *socketController) handleRequestBatchAssessment(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	var req batchAssessRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse batch request", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid batch payload"})
		return
	}
	if len(req.Requests) == 0 {
		socket.Emit("analysisError", map[string]string{"message": "batch contains no requests"})
		return
	}

	logger.InfoContext(ctx, "received batch assessment request",
		slog.String("socketID", socket.ID()),
		slog.Int("items", len(req.Requests)),
	)

	reqCtx, cancel := context.WithTimeout(ctx, assessRequestTimeout*time.Duration(len(req.Requests)))
	defer cancel()

	results := c.runBatch(reqCtx, req.Requests, req.Workers)
	socket.Emit("batchAssessment", results)
}

func (c *socketController) handleRequestRecentAssessments(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	limit := 50
	if payload != "" {
		var req recentAssessmentsRequest
		if err := json.Unmarshal([]byte(payload), &req); err == nil && req.Limit > 0 {
			limit = req.Limit
		}
	}

	assessments, err := c.store.GetRecentAssessments(limit)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to load recent assessments", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "failed to load recent assessments"})
		return
	}
	socket.Emit("recentAssessments", assessments)
}
