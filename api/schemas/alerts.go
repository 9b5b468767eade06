package schemas

import (
	"errors"
	"strings"
)

// -- Sentinel Errors --

var (
	// ErrNotFound is returned when an alert id is unknown to every store.
	ErrNotFound = errors.New("alert not found")
	// ErrUnavailable is returned by the storage gate while the primary store is
	// considered down. It never escapes the persistence adapter.
	ErrUnavailable = errors.New("primary store unavailable")
)

// -- Alert Schemas --

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive   AlertStatus = "Active"
	StatusResolved AlertStatus = "Resolved"
)

// Traffic categories produced by the classifier. Normal is the baseline and
// never produces an alert.
const (
	CategoryNormal     = "Normal"
	CategoryDDoS       = "DDoS"
	CategoryBruteForce = "Brute Force"
	CategoryPortScan   = "Port Scan"
)

// AlertRecord is a persisted, scored detection. The JSON layout matches the
// fallback snapshot file and the primary `alerts` table.
//
// Timestamp is kept as the fixed `YYYY-MM-DD HH:MM:SS` string emitted by the
// flow source. It is zero padded, so lexicographic order is chronological order,
// and every sort in the core relies on that.
type AlertRecord struct {
	ID              string      `json:"id"`
	Timestamp       string      `json:"timestamp"`
	SourceIP        string      `json:"source_ip"`
	DestinationIP   string      `json:"destination_ip"`
	DestinationPort int         `json:"destination_port"`
	Protocol        string      `json:"protocol"`
	PacketSize      int         `json:"packet_size"`
	PredictedLabel  string      `json:"predicted_label"`
	Confidence      float64     `json:"confidence"`
	RiskScore       float64     `json:"risk_score"` // 0..100, two decimals.
	Status          AlertStatus `json:"status"`
	EscalationFlag  bool        `json:"escalation_flag"`
	// SourceCountry is optional enrichment; older snapshots do not carry it.
	SourceCountry string `json:"source_country,omitempty"`
}

// IsActive reports whether the alert still needs attention. Snapshots written
// before the status field existed leave it empty, which counts as active.
func (a AlertRecord) IsActive() bool {
	return a.Status != StatusResolved
}

// StatusFilter narrows a query by lifecycle state.
type StatusFilter string

const (
	FilterAll      StatusFilter = ""
	FilterActive   StatusFilter = "active"
	FilterResolved StatusFilter = "resolved"
)

// ParseStatusFilter maps the loose values accepted by the HTTP layer
// ("all", "Active", "resolved", "") onto a StatusFilter.
func ParseStatusFilter(s string) StatusFilter {
	switch {
	case s == "" || strings.EqualFold(s, "all"):
		return FilterAll
	case strings.EqualFold(s, "resolved"):
		return FilterResolved
	default:
		return FilterActive
	}
}

// Match reports whether the alert passes the filter.
func (f StatusFilter) Match(a AlertRecord) bool {
	switch f {
	case FilterActive:
		return a.IsActive()
	case FilterResolved:
		return a.Status == StatusResolved
	default:
		return true
	}
}
