package models

import (
	"time"
)

// RiskLevel is the ordinal bucket derived from a numeric risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
	// RiskUnknown marks assessments that failed during inference; the
	// score is forced to zero and the error recorded.
	RiskUnknown RiskLevel = "UNKNOWN"
)

// LevelForScore maps a clamped visual risk score to its level using the fixed
// cut points (>=8 CRITICAL, >=6 HIGH, >=3 MEDIUM, else LOW).
func LevelForScore(score float64) RiskLevel {
	switch {
	case score >= 8:
		return RiskCritical
	case score >= 6:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Box is a normalized bounding box with coordinates in the [0,1] range,
// origin at the top-left of the image.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one detected object with its semantic classification flags.
// The flags are derived from the class name by a total, pure mapping;
// unmapped classes carry all flags false.
type Detection struct {
	Class            string  `json:"class"`
	Confidence       float64 `json:"confidence"`
	Box              Box     `json:"box"`
	IsMilitary       bool    `json:"isMilitary"`
	IsCivilian       bool    `json:"isCivilian"`
	IsInfrastructure bool    `json:"isInfrastructure"`
}

// PatternFinding is the structured output of one heuristic pixel-level
// detector. Every detector produces exactly one finding per image.
type PatternFinding struct {
	Detector         string             `json:"detector"`
	Detected         bool               `json:"detected"`
	RiskContribution float64            `json:"riskContribution"` // [0,10]
	Confidence       float64            `json:"confidence"`       // [0,1]
	Description      string             `json:"description"`
	Metrics          map[string]float64 `json:"metrics,omitempty"`
}

// ObjectSummary aggregates semantic counts over a detection list together
// with the threat verdict the ordered threshold rules produce.
type ObjectSummary struct {
	MilitaryObjects int       `json:"militaryObjects"`
	CivilianObjects int       `json:"civilianObjects"`
	Infrastructure  int       `json:"infrastructure"`
	ThreatLevel     RiskLevel `json:"threatLevel"`
}

// RiskAssessment is the terminal, immutable output of one pipeline run and
// the only contract the surrounding web/CRUD layer consumes.
type RiskAssessment struct {
	ID                string           `json:"id"`
	Timestamp         time.Time        `json:"timestamp"`
	VisualRiskScore   float64          `json:"visualRiskScore"` // clamped [0,10]
	RiskLevel         RiskLevel        `json:"riskLevel"`
	Detections        []Detection      `json:"detections"`
	ObjectSummary     ObjectSummary    `json:"objectSummary"`
	PatternFindings   []PatternFinding `json:"patternFindings"`
	ContextBonus      float64          `json:"contextCorrelationBonus"`
	Recommendations   []string         `json:"recommendations"`
	Confidence        float64          `json:"confidence"`
	Partial           bool             `json:"partial,omitempty"`
	Errors            []string         `json:"errors,omitempty"`
	Damage            *DamageSummary   `json:"damage,omitempty"`
	ImageSource       string           `json:"imageSource,omitempty"`
	ImageContentHash  string           `json:"imageContentHash,omitempty"`
	ResolutionMPx     float64          `json:"resolutionMetersPerPixel,omitempty"`
	Latitude          *float64         `json:"latitude,omitempty"`
	Longitude         *float64         `json:"longitude,omitempty"`
	LatencyMs         float64          `json:"latencyMs"`
	SituationSummary  string           `json:"situationSummary,omitempty"`
	ServedFromCache   bool             `json:"servedFromCache,omitempty"`
}

// DamageSummary carries the damage classifier's verdict blended with the
// intensity-based basic score.
type DamageSummary struct {
	Class          string    `json:"class"`
	Confidence     float64   `json:"confidence"`
	Probabilities  []float64 `json:"probabilities"`
	BasicScore     float64   `json:"basicScore"`
	CombinedScore  float64   `json:"combinedScore"`
	CombinedLevel  RiskLevel `json:"combinedLevel"`
	ModelAvailable bool      `json:"modelAvailable"`
}
