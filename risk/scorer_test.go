package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

func det(class string, conf float64, military bool) models.Detection {
	return models.Detection{Class: class, Confidence: conf, IsMilitary: military}
}

func finding(name string, contribution, conf float64) models.PatternFinding {
	return models.PatternFinding{Detector: name, Detected: contribution > 0, RiskContribution: contribution, Confidence: conf}
}

func TestScore(t *testing.T) {
	t.Parallel()
	scorer := NewScorer()

	t.Run("empty input is low with neutral confidence", func(t *testing.T) {
		t.Parallel()
		out := scorer.Score(nil, nil, "")
		assert.Zero(t, out.VisualRiskScore)
		assert.Equal(t, models.RiskLow, out.RiskLevel)
		assert.Equal(t, defaultBaseConfidence, out.Confidence)
		assert.NotEmpty(t, out.Recommendations)
	})

	t.Run("score is always clamped to ten", func(t *testing.T) {
		t.Parallel()
		detections := []models.Detection{
			det("tank", 1.0, true), det("tank", 1.0, true), det("tank", 1.0, true),
			det("missile launcher", 1.0, true),
		}
		findings := []models.PatternFinding{
			finding("fire_smoke", 8, 0.9),
			finding("structural_damage", 5, 0.8),
		}
		out := scorer.Score(detections, findings, "military attack with fire and destroyed buildings")
		assert.Equal(t, 10.0, out.VisualRiskScore)
		assert.Equal(t, models.RiskCritical, out.RiskLevel)
	})

	t.Run("monotonic fusion", func(t *testing.T) {
		t.Parallel()
		base := scorer.Score([]models.Detection{det("tank", 0.8, true)}, nil, "")
		more := scorer.Score([]models.Detection{det("tank", 0.8, true)},
			[]models.PatternFinding{finding("crowd_density", 2, 0.4)}, "")
		assert.GreaterOrEqual(t, more.VisualRiskScore, base.VisualRiskScore)
	})

	t.Run("cut points", func(t *testing.T) {
		t.Parallel()
		tests := []struct {
			score float64
			want  models.RiskLevel
		}{
			{0, models.RiskLow},
			{2.99, models.RiskLow},
			{3, models.RiskMedium},
			{5.99, models.RiskMedium},
			{6, models.RiskHigh},
			{7.99, models.RiskHigh},
			{8, models.RiskCritical},
			{10, models.RiskCritical},
		}
		for _, tc := range tests {
			assert.Equal(t, tc.want, models.LevelForScore(tc.score), "score %.2f", tc.score)
		}
	})
}

func TestContextBonus(t *testing.T) {
	t.Parallel()
	scorer := NewScorer()

	t.Run("matching context raises the score", func(t *testing.T) {
		t.Parallel()
		detections := []models.Detection{det("military truck", 0.8, true)}
		without := scorer.Score(detections, nil, "")
		with := scorer.Score(detections, nil, "reports of troops moving through the area")

		assert.Zero(t, without.ContextBonus)
		assert.InDelta(t, 0.8*detectionBonusWeight, with.ContextBonus, 1e-9)
		assert.Greater(t, with.VisualRiskScore, without.VisualRiskScore)
	})

	t.Run("finding bonus weighted by its confidence", func(t *testing.T) {
		t.Parallel()
		findings := []models.PatternFinding{finding("fire_smoke", 4, 0.6)}
		out := scorer.Score(nil, findings, "large fire burning near the depot")
		assert.InDelta(t, 0.6*findingBonusWeight, out.ContextBonus, 1e-9)
	})

	t.Run("bonus capped at three", func(t *testing.T) {
		t.Parallel()
		detections := []models.Detection{
			det("tank", 1.0, true), det("tank", 1.0, true), det("tank", 1.0, true),
		}
		findings := []models.PatternFinding{
			finding("fire_smoke", 4, 1.0),
			finding("structural_damage", 3, 1.0),
		}
		out := scorer.Score(detections, findings, "military attack, fire, destroyed buildings")
		assert.Equal(t, maxContextBonus, out.ContextBonus)
	})

	t.Run("undetected findings contribute no bonus", func(t *testing.T) {
		t.Parallel()
		findings := []models.PatternFinding{{Detector: "fire_smoke", Detected: false, Confidence: 0.9}}
		out := scorer.Score(nil, findings, "fire everywhere")
		assert.Zero(t, out.ContextBonus)
	})
}

func TestRecommendations(t *testing.T) {
	t.Parallel()
	scorer := NewScorer()

	t.Run("weapon class triggers verification", func(t *testing.T) {
		t.Parallel()
		out := scorer.Score([]models.Detection{det("tank", 0.9, true)}, nil, "")
		require.NotEmpty(t, out.Recommendations)
		assert.Contains(t, out.Recommendations, "verification required: possible tank signature")
	})

	t.Run("deduplicated", func(t *testing.T) {
		t.Parallel()
		out := scorer.Score([]models.Detection{
			det("tank", 0.9, true), det("tank", 0.7, true),
		}, nil, "")
		seen := map[string]int{}
		for _, rec := range out.Recommendations {
			seen[rec]++
		}
		for rec, n := range seen {
			assert.Equal(t, 1, n, "duplicate recommendation %q", rec)
		}
	})
}

func TestBaseRisk(t *testing.T) {
	t.Parallel()
	assert.Greater(t, BaseRisk("tank"), BaseRisk("bus"))
	assert.Greater(t, BaseRisk("Missile Launcher"), BaseRisk("bridge"))
	assert.Equal(t, 0.3, BaseRisk("kiosk"))
}

func TestSortByScore(t *testing.T) {
	t.Parallel()
	now := time.Now()
	list := []models.RiskAssessment{
		{VisualRiskScore: 2, Timestamp: now},
		{VisualRiskScore: 9, Timestamp: now},
		{VisualRiskScore: 9, Timestamp: now.Add(time.Minute)},
	}
	SortByScore(list)
	assert.Equal(t, 9.0, list[0].VisualRiskScore)
	assert.Equal(t, now.Add(time.Minute), list[0].Timestamp)
	assert.Equal(t, 2.0, list[2].VisualRiskScore)
}
