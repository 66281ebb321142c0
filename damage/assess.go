package damage

import (
	"image"
	"log/slog"
	"math"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Blend weights for combining the intensity-based basic score with the
// classifier verdict.
const (
	basicWeight  = 0.3
	damageWeight = 0.7
)

// Assessor runs the damage path over an acquired image: feature extraction,
// an intensity-based basic score and, when a trained model is loaded, the
// classifier verdict blended on top. With no model it degrades to the basic
// score alone.
type Assessor struct {
	model  *Model
	logger *slog.Logger
}

// NewAssessor wraps a loaded model. A nil model is allowed and keeps the
// subsystem in basic-score-only mode.
func NewAssessor(model *Model) *Assessor {
	return &Assessor{model: model, logger: utils.GetLogger()}
}

// ModelAvailable reports whether a trained model is loaded.
func (a *Assessor) ModelAvailable() bool {
	return a.model != nil && a.model.Classifier != nil
}

// Metadata returns the loaded model's training metadata, or false when no
// model is loaded.
func (a *Assessor) Metadata() (Metadata, bool) {
	if a.model == nil {
		return Metadata{}, false
	}
	return a.model.Metadata, true
}

// Assess produces the damage summary for one image. It never fails: a
// classifier error is logged and the result falls back to the basic score.
func (a *Assessor) Assess(img image.Image) *models.DamageSummary {
	features := ExtractFeatures(img)
	basic := basicScoreFromFeatures(features)

	summary := &models.DamageSummary{
		BasicScore:    basic,
		CombinedScore: basic,
		CombinedLevel: models.LevelForScore(basic),
	}

	if !a.ModelAvailable() {
		return summary
	}

	pred, err := a.model.Classifier.Predict(features)
	if err != nil {
		a.logger.Warn("damage prediction failed, using basic score",
			slog.String("error", err.Error()))
		return summary
	}

	combined := clampScore(basicWeight*basic + damageWeight*classRiskScore(pred.Label)*pred.Confidence)
	summary.Class = pred.Label
	summary.Confidence = pred.Confidence
	summary.Probabilities = pred.Probabilities
	summary.CombinedScore = combined
	summary.CombinedLevel = models.LevelForScore(combined)
	summary.ModelAvailable = true
	return summary
}

// basicScoreFromFeatures derives the model-free damage score from darkness,
// texture variance and edge density.
func basicScoreFromFeatures(features []float64) float64 {
	darkness := 1 - features[idxIntensityMean]/255
	texture := math.Min(1, features[idxLapVariance]/2000)
	edges := math.Min(1, features[idxEdgeDensity]/0.3)
	return clampScore(10 * (0.4*darkness + 0.3*texture + 0.3*edges))
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
