package schemas

import (
	"fmt"
	"time"
)

// -- Telemetry Schemas --

// TimestampLayout is the fixed, zero padded layout used for every flow and
// alert timestamp. Strings in this layout sort chronologically.
const TimestampLayout = "2006-01-02 15:04:05"

// Protocols accepted in a FlowRecord.
const (
	ProtocolTCP  = "TCP"
	ProtocolUDP  = "UDP"
	ProtocolICMP = "ICMP"
)

// FlowRecord is a single network flow event as emitted by a telemetry source.
type FlowRecord struct {
	Timestamp  string `json:"timestamp"`
	SourceIP   string `json:"source_ip"`
	DestIP     string `json:"dest_ip"`
	Protocol   string `json:"protocol"`
	PacketSize int    `json:"packet_size"`
	DestPort   int    `json:"dest_port"`

	// Extra holds optional raw flow counters (flow_duration, total_fwd_packets,
	// total_l_fwd_packets, ...) used by the vectorizer's derivation rules.
	Extra map[string]float64 `json:"extra,omitempty"`

	// Label is the ground truth category when the record comes from the
	// synthesizer. The detection pipeline never reads it.
	Label string `json:"label,omitempty"`
}

// Validate checks the record against the telemetry contract.
func (f FlowRecord) Validate() error {
	if _, err := time.Parse(TimestampLayout, f.Timestamp); err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", f.Timestamp, err)
	}
	if f.SourceIP == "" || f.DestIP == "" {
		return fmt.Errorf("source and destination ip are required")
	}
	switch f.Protocol {
	case ProtocolTCP, ProtocolUDP, ProtocolICMP:
	default:
		return fmt.Errorf("unsupported protocol %q", f.Protocol)
	}
	if f.PacketSize < 0 {
		return fmt.Errorf("packet_size must be non-negative, got %d", f.PacketSize)
	}
	if f.DestPort < 1 || f.DestPort > 65535 {
		return fmt.Errorf("dest_port out of range: %d", f.DestPort)
	}
	return nil
}

// Feature is one named model input.
type Feature struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// FeatureVector is the ordered model input. The order is part of the
// classifier contract and never changes for a given model version.
type FeatureVector []Feature

// Names returns the feature names in order.
func (v FeatureVector) Names() []string {
	names := make([]string, len(v))
	for i, f := range v {
		names[i] = f.Name
	}
	return names
}

// Values returns the feature values in order.
func (v FeatureVector) Values() []float64 {
	values := make([]float64, len(v))
	for i, f := range v {
		values[i] = f.Value
	}
	return values
}

// Get returns the value of a named feature.
func (v FeatureVector) Get(name string) (float64, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Prediction is the classifier output for one vector.
type Prediction struct {
	Label         string             `json:"label"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Confidence is the probability the model assigned to its own label.
func (p Prediction) Confidence() float64 {
	return p.Probabilities[p.Label]
}
