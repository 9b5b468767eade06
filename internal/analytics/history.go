package analytics

import (
	"sort"
	"time"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

// HistoryPoint is the number of alerts raised within one minute.
type HistoryPoint struct {
	Time  string `json:"time"` // YYYY-MM-DD HH:MM
	Count int    `json:"count"`
}

// History buckets records by minute, oldest first. Records with an
// unparseable timestamp are left out.
func History(records []schemas.AlertRecord) []HistoryPoint {
	buckets := make(map[string]int)
	for _, r := range records {
		ts, err := time.Parse(schemas.TimestampLayout, r.Timestamp)
		if err != nil {
			continue
		}
		buckets[ts.Format("2006-01-02 15:04")]++
	}
	out := make([]HistoryPoint, 0, len(buckets))
	for minute, n := range buckets {
		out = append(out, HistoryPoint{Time: minute, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
