// Package risk fuses object detections, heuristic pattern findings and
// optional text context into one bounded visual risk score.
//
// Scoring model
//
// The base score is the sum of per-detection risk (class base risk weighted
// by confidence) and every finding's risk contribution. Supplied context
// text can only add a bounded bonus on top: each detection or finding whose
// category keywords appear in the lower-cased text contributes a
// confidence-weighted amount, and the total bonus is capped so text evidence
// never dominates visual evidence. The final score is clamped to [0,10] and
// bucketed by fixed cut points. Adding any detection or finding with a
// positive contribution can only raise the score.
package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

const (
	maxContextBonus       = 3.0
	detectionBonusWeight  = 1.5
	findingBonusWeight    = 2.0
	defaultBaseConfidence = 0.5
)

// classBaseRisk holds the per-class base risk used before confidence
// weighting. Matching is substring containment on the lower-cased class
// name, first hit wins.
var classBaseRisk = []struct {
	keyword string
	risk    float64
}{
	{"tank", 2.5},
	{"armored", 2.5},
	{"missile", 3.0},
	{"artillery", 3.0},
	{"weapon", 3.0},
	{"helicopter", 2.0},
	{"fighter", 2.5},
	{"military", 2.0},
	{"fixed-wing", 1.8},
	{"cargo truck", 1.5},
	{"cargo plane", 1.5},
	{"aircraft", 1.2},
	{"warship", 2.2},
	{"bridge", 0.8},
	{"storage tank", 0.8},
	{"damaged building", 1.5},
}

// weaponClasses trigger an explicit verification recommendation whenever
// one appears among the detections.
var weaponClasses = []string{"tank", "armored", "missile", "artillery", "weapon", "helicopter", "fighter"}

// contextKeywords maps a semantic category to the words looked up in the
// supplied context text.
var contextKeywords = map[string][]string{
	"military":          {"military", "troops", "army", "soldiers", "weapons", "attack", "offensive"},
	"civilian":          {"civilian", "evacuation", "refugees", "displaced", "casualties"},
	"infrastructure":    {"infrastructure", "bridge", "airport", "power", "supply"},
	"crowd_density":     {"crowd", "protest", "gathering", "demonstration", "riot"},
	"fire_smoke":        {"fire", "smoke", "burning", "explosion", "shelling"},
	"military_vehicles": {"convoy", "vehicles", "tanks", "column", "deployment"},
	"structural_damage": {"damage", "destroyed", "collapsed", "rubble", "strike"},
}

// Scorer fuses pipeline outputs into a RiskAssessment fragment. It is
// stateless and safe for concurrent use.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// BaseRisk returns the class base risk for a detection class name.
func BaseRisk(class string) float64 {
	name := strings.ToLower(class)
	for _, entry := range classBaseRisk {
		if strings.Contains(name, entry.keyword) {
			return entry.risk
		}
	}
	return 0.3
}

// Score computes the clamped visual risk score, level, context bonus and
// recommendations for one image's outputs. contextText may be empty.
func (s *Scorer) Score(detections []models.Detection, findings []models.PatternFinding, contextText string) models.RiskAssessment {
	base := 0.0
	for _, det := range detections {
		base += BaseRisk(det.Class) * det.Confidence
	}
	for _, f := range findings {
		base += f.RiskContribution
	}

	bonus := s.contextBonus(detections, findings, contextText)
	score := clampScore(base + bonus)

	return models.RiskAssessment{
		VisualRiskScore: score,
		RiskLevel:       models.LevelForScore(score),
		Detections:      detections,
		PatternFindings: findings,
		ContextBonus:    bonus,
		Recommendations: s.recommendations(models.LevelForScore(score), detections, findings),
		Confidence:      overallConfidence(detections, findings),
	}
}

// contextBonus accumulates the confidence-weighted keyword bonus, capped at
// maxContextBonus.
func (s *Scorer) contextBonus(detections []models.Detection, findings []models.PatternFinding, contextText string) float64 {
	text := strings.ToLower(strings.TrimSpace(contextText))
	if text == "" {
		return 0
	}

	bonus := 0.0
	for _, det := range detections {
		for _, category := range detectionCategories(det) {
			if keywordHit(text, contextKeywords[category]) {
				bonus += det.Confidence * detectionBonusWeight
				break
			}
		}
	}
	for _, f := range findings {
		if !f.Detected {
			continue
		}
		if keywordHit(text, contextKeywords[f.Detector]) {
			bonus += f.Confidence * findingBonusWeight
		}
	}
	return math.Min(bonus, maxContextBonus)
}

func detectionCategories(det models.Detection) []string {
	var cats []string
	if det.IsMilitary {
		cats = append(cats, "military")
	}
	if det.IsCivilian {
		cats = append(cats, "civilian")
	}
	if det.IsInfrastructure {
		cats = append(cats, "infrastructure")
	}
	return cats
}

func keywordHit(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// recommendations builds the fixed-template action list for a risk level,
// deduplicated and stable in order.
func (s *Scorer) recommendations(level models.RiskLevel, detections []models.Detection, findings []models.PatternFinding) []string {
	var recs []string

	switch level {
	case models.RiskCritical:
		recs = append(recs,
			"immediate review by an analyst required",
			"escalate to the incident response channel",
			"re-task imagery at maximum available resolution")
	case models.RiskHigh:
		recs = append(recs,
			"priority review within the current shift",
			"schedule follow-up acquisition of the same area")
	case models.RiskMedium:
		recs = append(recs, "add the area to the routine monitoring rotation")
	default:
		recs = append(recs, "no action required, archive the assessment")
	}

	for _, det := range detections {
		if isWeaponClass(det.Class) {
			recs = append(recs, fmt.Sprintf("verification required: possible %s signature", strings.ToLower(det.Class)))
		}
	}
	for _, f := range findings {
		if f.Detected && f.Detector == "fire_smoke" {
			recs = append(recs, "cross-check thermal anomaly feeds for active fires")
		}
	}

	return dedupe(recs)
}

func isWeaponClass(class string) bool {
	name := strings.ToLower(class)
	for _, kw := range weaponClasses {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// overallConfidence averages the individual confidences; an empty result
// set keeps a neutral default rather than zero.
func overallConfidence(detections []models.Detection, findings []models.PatternFinding) float64 {
	sum, n := 0.0, 0
	for _, det := range detections {
		sum += det.Confidence
		n++
	}
	for _, f := range findings {
		sum += f.Confidence
		n++
	}
	if n == 0 {
		return defaultBaseConfidence
	}
	return sum / float64(n)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
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

// SortByScore orders assessments by descending visual risk score with a
// stable tie-break on timestamp, newest first. Used by the batch reporters.
func SortByScore(assessments []models.RiskAssessment) {
	sort.SliceStable(assessments, func(i, j int) bool {
		if assessments[i].VisualRiskScore != assessments[j].VisualRiskScore {
			return assessments[i].VisualRiskScore > assessments[j].VisualRiskScore
		}
		return assessments[i].Timestamp.After(assessments[j].Timestamp)
	})
}
