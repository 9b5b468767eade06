package analytics

import (
	"sort"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/risk"
)

const (
	// DefaultCountry is reported for alerts without source enrichment.
	DefaultCountry = "USA"
	// CriticalLimit is how many critical alerts the dashboard shows.
	CriticalLimit = 3
)

// NamedCount is a chart series point keyed by name.
type NamedCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// GeoCount is a map series point keyed by country id.
type GeoCount struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

// Summary is the dashboard view over one alert set.
type Summary struct {
	Total          int                   `json:"total"`
	Active         int                   `json:"active"`
	RiskLevels     []NamedCount          `json:"risk_levels"`
	AttackTypes    []NamedCount          `json:"attack_types"`
	Geo            []GeoCount            `json:"geo"`
	CriticalAlerts []schemas.AlertRecord `json:"critical_alerts"`
	HighRisk       []schemas.AlertRecord `json:"high_risk"`
}

// Summarize computes the dashboard summary. records are expected newest first,
// which is how the store returns them; list fields keep that order.
func Summarize(records []schemas.AlertRecord) Summary {
	s := Summary{
		Total:          len(records),
		RiskLevels:     RiskLevels(records),
		AttackTypes:    AttackTypes(records),
		Geo:            Geo(records),
		CriticalAlerts: Critical(records, CriticalLimit),
		HighRisk:       HighRisk(records),
	}
	for _, r := range records {
		if r.IsActive() {
			s.Active++
		}
	}
	return s
}

// RiskLevels counts records per risk level, always listing every level from
// Critical down to Low.
func RiskLevels(records []schemas.AlertRecord) []NamedCount {
	counts := make(map[risk.Level]int, len(risk.Levels))
	for _, r := range records {
		counts[risk.LevelOf(r.RiskScore)]++
	}
	out := make([]NamedCount, 0, len(risk.Levels))
	for _, l := range risk.Levels {
		out = append(out, NamedCount{Name: string(l), Value: counts[l]})
	}
	return out
}

// AttackTypes counts records per predicted label, most frequent first.
func AttackTypes(records []schemas.AlertRecord) []NamedCount {
	return countBy(records, func(r schemas.AlertRecord) string {
		if r.PredictedLabel == "" {
			return "Unknown"
		}
		return r.PredictedLabel
	})
}

// Geo counts records per source country.
func Geo(records []schemas.AlertRecord) []GeoCount {
	named := countBy(records, func(r schemas.AlertRecord) string {
		if r.SourceCountry == "" {
			return DefaultCountry
		}
		return r.SourceCountry
	})
	out := make([]GeoCount, len(named))
	for i, n := range named {
		out[i] = GeoCount{ID: n.Name, Value: n.Value}
	}
	return out
}

// Critical returns up to limit active alerts at the critical level.
func Critical(records []schemas.AlertRecord, limit int) []schemas.AlertRecord {
	out := make([]schemas.AlertRecord, 0, limit)
	for _, r := range records {
		if len(out) == limit {
			break
		}
		if r.IsActive() && r.RiskScore >= risk.CriticalThreshold {
			out = append(out, r)
		}
	}
	return out
}

// HighRisk returns every alert at the high level or above, regardless of status.
func HighRisk(records []schemas.AlertRecord) []schemas.AlertRecord {
	out := make([]schemas.AlertRecord, 0)
	for _, r := range records {
		if r.RiskScore >= risk.HighThreshold {
			out = append(out, r)
		}
	}
	return out
}

// countBy tallies records by key, ordered by count descending, then by key.
func countBy(records []schemas.AlertRecord, key func(schemas.AlertRecord) string) []NamedCount {
	counts := make(map[string]int)
	for _, r := range records {
		counts[key(r)]++
	}
	out := make([]NamedCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, NamedCount{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Name < out[j].Name
	})
	return out
}
