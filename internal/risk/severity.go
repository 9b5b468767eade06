// Package risk turns classifier confidence into a bounded 0..100 severity and
// escalates repeat offenders within a detection run.
package risk

import (
	"math"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

// DefaultWeight applies to categories with no configured impact weight.
const DefaultWeight = 0.5

// weights is the impact of each category relative to a confirmed intrusion attempt.
var weights = map[string]float64{
	schemas.CategoryDDoS:       0.9,
	schemas.CategoryBruteForce: 1.0,
	schemas.CategoryPortScan:   0.6,
	schemas.CategoryNormal:     0.1,
}

// Weight returns the impact weight for category.
func Weight(category string) float64 {
	if w, ok := weights[category]; ok {
		return w
	}
	return DefaultWeight
}

// Severity computes confidence * weight * 100, clamped to [0, 100] and rounded
// to two decimals. It is monotone non-decreasing in confidence.
func Severity(confidence float64, category string) float64 {
	raw := confidence * Weight(category) * 100
	return Round2(math.Min(math.Max(raw, 0), 100))
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Level is a coarse risk band used by dashboards.
type Level string

const (
	LevelCritical Level = "Critical"
	LevelHigh     Level = "High"
	LevelMedium   Level = "Medium"
	LevelLow      Level = "Low"
)

// Levels lists every band, most severe first.
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow}

// Band thresholds, inclusive.
const (
	CriticalThreshold = 80.0
	HighThreshold     = 60.0
	MediumThreshold   = 30.0
)

// LevelOf maps a score onto its band.
func LevelOf(score float64) Level {
	switch {
	case score >= CriticalThreshold:
		return LevelCritical
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}
