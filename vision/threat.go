package vision

import (
	"strings"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

// ThreatRules are the ordered threshold rules that turn aggregate detection
// counts into a threat verdict. The constants are hand-tuned policy carried
// over from field calibration; treat them as configuration when retuning.
type ThreatRules struct {
	// HighSignatureClasses immediately escalate to CRITICAL when present
	// with any confidence above zero.
	HighSignatureClasses []string
	CriticalMilitary     int
	HighMilitary         int
	MediumMilitary       int
}

// DefaultThreatRules returns the standard rule set.
func DefaultThreatRules() ThreatRules {
	return ThreatRules{
		HighSignatureClasses: []string{"helicopter", "fixed-wing aircraft", "cargo truck"},
		CriticalMilitary:     5,
		HighMilitary:         3,
		MediumMilitary:       1,
	}
}

// Summarize aggregates semantic counts and applies the rules in priority
// order, short-circuiting on the first match.
func (r ThreatRules) Summarize(detections []models.Detection) models.ObjectSummary {
	summary := models.ObjectSummary{ThreatLevel: models.RiskLow}

	highSignature := false
	for _, det := range detections {
		if det.IsMilitary {
			summary.MilitaryObjects++
		}
		if det.IsCivilian {
			summary.CivilianObjects++
		}
		if det.IsInfrastructure {
			summary.Infrastructure++
		}
		if det.Confidence > 0 && r.isHighSignature(det.Class) {
			highSignature = true
		}
	}

	switch {
	case highSignature || summary.MilitaryObjects >= r.CriticalMilitary:
		summary.ThreatLevel = models.RiskCritical
	case summary.MilitaryObjects >= r.HighMilitary:
		summary.ThreatLevel = models.RiskHigh
	case summary.MilitaryObjects >= r.MediumMilitary:
		summary.ThreatLevel = models.RiskMedium
	}
	return summary
}

func (r ThreatRules) isHighSignature(class string) bool {
	name := strings.ToLower(class)
	for _, sig := range r.HighSignatureClasses {
		if strings.Contains(name, sig) {
			return true
		}
	}
	return false
}
