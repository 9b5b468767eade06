// Package analytics derives the read-side views served to analysts: grouped
// alerts, dashboard summaries and the per-minute history.
package analytics

import (
	"sort"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/risk"
)

// AggregatedAlert groups every alert sharing a source and attack type.
type AggregatedAlert struct {
	SourceIP      string  `json:"source_ip"`
	AttackType    string  `json:"attack_type"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	MaxRisk       float64 `json:"max_risk"`
	LastSeen      string  `json:"last_seen"`
}

type groupKey struct {
	source string
	label  string
}

// Aggregate collapses records into one row per (source ip, predicted label),
// ordered by max risk, highest first. Rows with equal max risk keep the order
// in which their group first appeared in records.
func Aggregate(records []schemas.AlertRecord) []AggregatedAlert {
	index := make(map[groupKey]int)
	rows := make([]AggregatedAlert, 0)
	totals := make([]float64, 0)

	for _, r := range records {
		k := groupKey{source: r.SourceIP, label: r.PredictedLabel}
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, AggregatedAlert{
				SourceIP:   r.SourceIP,
				AttackType: r.PredictedLabel,
				LastSeen:   r.Timestamp,
			})
			totals = append(totals, 0)
		}
		row := &rows[i]
		row.Count++
		totals[i] += r.Confidence
		if r.RiskScore > row.MaxRisk {
			row.MaxRisk = r.RiskScore
		}
		if r.Timestamp > row.LastSeen {
			row.LastSeen = r.Timestamp
		}
	}

	for i := range rows {
		rows[i].AvgConfidence = risk.Round2(totals[i] / float64(rows[i].Count))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].MaxRisk > rows[j].MaxRisk
	})
	return rows
}
