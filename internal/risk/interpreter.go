package risk

import (
	"math"
	"time"
)

// Risk tiers communicated to respondents.
const (
	LevelLow      = "Low"
	LevelModerate = "Moderate"
	LevelHigh     = "High"
)

// DefaultThreshold is the decision cutoff for the binary predicted label.
// It matches the operating point chosen during offline training and is a
// separate knob from the tier boundaries: callers may override it per
// request without changing what Low/Moderate/High mean.
const DefaultThreshold = 0.10

// Tier boundaries fixed by the offline calibration. Changing them without
// retraining breaks the documented meaning of each tier.
const (
	lowUpperBound      = 0.10
	moderateUpperBound = 0.20
)

const dateLayout = "2006-01-02"

// RiskLevel discretizes a probability into a tier.
func RiskLevel(probability float64) string {
	if probability < lowUpperBound {
		return LevelLow
	}
	if probability < moderateUpperBound {
		return LevelModerate
	}
	return LevelHigh
}

// RiskMessage returns the fixed advisory text for a tier.
func RiskMessage(level string) string {
	switch level {
	case LevelLow:
		return "Your bone health appears stable. Maintain healthy habits and reassess periodically."
	case LevelModerate:
		return "Early risk indicators detected. Lifestyle improvements are recommended."
	default:
		return "Strong osteoporosis risk patterns observed. Preventive action and clinical screening advised."
	}
}

// ReassessmentDays returns the fixed reassessment interval for a tier.
// Unrecognized tiers fall back to the moderate interval.
func ReassessmentDays(level string) int {
	switch level {
	case LevelLow:
		return 180
	case LevelModerate:
		return 90
	case LevelHigh:
		return 30
	}
	return 90
}

// NextReassessmentDate computes the calendar date of the next recommended
// screening relative to now.
func NextReassessmentDate(level string, now time.Time) string {
	return now.AddDate(0, 0, ReassessmentDays(level)).Format(dateLayout)
}

// Interpret converts a classifier probability into the full assessment:
// tier, advisory message, display score, reassessment date, and the binary
// label against the supplied decision threshold.
func Interpret(probability, threshold float64, now time.Time) Assessment {
	level := RiskLevel(probability)

	prediction := 0
	if probability >= threshold {
		prediction = 1
	}

	return Assessment{
		Probability:      probability,
		Prediction:       prediction,
		Level:            level,
		RiskScore:        int(math.Round(probability * 100)),
		Message:          RiskMessage(level),
		NextReassessment: NextReassessmentDate(level, now),
	}
}
