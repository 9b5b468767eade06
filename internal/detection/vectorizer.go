package detection

import (
	"math"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

// Feature names understood by the default model.
const (
	FeatureDestPort         = "dest_port"
	FeatureFlowDuration     = "flow_duration"
	FeatureTotalFwdPackets  = "total_fwd_packets"
	FeatureTotalLFwdPackets = "total_l_fwd_packets"
	FeaturePacketSize       = "packet_size"
)

// RequiredFeatures is the ordered input of the default model version.
var RequiredFeatures = []string{
	FeatureDestPort,
	FeatureFlowDuration,
	FeatureTotalFwdPackets,
	FeatureTotalLFwdPackets,
	FeaturePacketSize,
}

// Derivation fills a feature that is missing from a raw frame.
type Derivation struct {
	// Requires lists the raw fields that must all be present for Derive to run.
	Requires []string
	Derive   func(frame map[string]float64) float64
}

// Vectorizer maps a raw flow frame onto the model's feature vector. Each
// feature is taken from the frame when present, derived through its strategy
// when the strategy's inputs are present, and imputed as 0 otherwise.
type Vectorizer struct {
	features   []string
	strategies map[string]Derivation
}

// NewVectorizer returns the vectorizer for the default model version.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{
		features: RequiredFeatures,
		strategies: map[string]Derivation{
			// Average forward packet size; a zero packet count counts as one.
			FeaturePacketSize: {
				Requires: []string{FeatureTotalLFwdPackets, FeatureTotalFwdPackets},
				Derive: func(frame map[string]float64) float64 {
					packets := frame[FeatureTotalFwdPackets]
					if packets == 0 {
						packets = 1
					}
					return frame[FeatureTotalLFwdPackets] / packets
				},
			},
		},
	}
}

// Features returns the ordered feature names this vectorizer emits.
func (v *Vectorizer) Features() []string {
	out := make([]string, len(v.features))
	copy(out, v.features)
	return out
}

// Frame flattens a flow record into raw named fields. A zero packet size is
// treated as absent so flow meters that only report counters get a derived size;
// without counters the derivation falls through to the same zero.
func Frame(rec schemas.FlowRecord) map[string]float64 {
	frame := make(map[string]float64, len(rec.Extra)+2)
	for k, val := range rec.Extra {
		frame[k] = val
	}
	frame[FeatureDestPort] = float64(rec.DestPort)
	if rec.PacketSize > 0 {
		frame[FeaturePacketSize] = float64(rec.PacketSize)
	}
	return frame
}

// Vectorize builds the feature vector for rec. The result always holds exactly
// the required features, in order, with finite values.
func (v *Vectorizer) Vectorize(rec schemas.FlowRecord) schemas.FeatureVector {
	return v.VectorizeFrame(Frame(rec))
}

// VectorizeFrame is Vectorize over an already flattened frame.
func (v *Vectorizer) VectorizeFrame(frame map[string]float64) schemas.FeatureVector {
	vector := make(schemas.FeatureVector, 0, len(v.features))
	for _, name := range v.features {
		vector = append(vector, schemas.Feature{Name: name, Value: v.resolve(name, frame)})
	}
	return vector
}

func (v *Vectorizer) resolve(name string, frame map[string]float64) float64 {
	if val, ok := frame[name]; ok {
		return finite(val)
	}
	if strategy, ok := v.strategies[name]; ok && hasAll(frame, strategy.Requires) {
		return finite(strategy.Derive(frame))
	}
	return 0
}

func hasAll(frame map[string]float64, keys []string) bool {
	for _, k := range keys {
		if _, ok := frame[k]; !ok {
			return false
		}
	}
	return true
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
