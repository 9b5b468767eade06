package classifier

import (
	"context"

	"github.com/xkilldash9x/aegiscore/api/schemas"
)

var (
	webPorts   = map[int]bool{80: true, 443: true}
	adminPorts = map[int]bool{22: true, 21: true, 3389: true}
	// servicePorts are the ports ordinary traffic uses.
	servicePorts = map[int]bool{80: true, 443: true, 53: true, 22: true, 21: true}
)

// Heuristic is a deterministic rule model keyed on destination port and
// packet size. It reproduces the signatures of the traffic profiles the
// synthesizer emits and needs no model server.
type Heuristic struct {
	features []string
}

// NewHeuristic returns a Heuristic that accepts vectors with features.
func NewHeuristic(features []string) *Heuristic {
	return &Heuristic{features: append([]string(nil), features...)}
}

// Predict implements schemas.Classifier.
func (h *Heuristic) Predict(ctx context.Context, vector schemas.FeatureVector) (schemas.Prediction, error) {
	if err := CheckFeatures(vector, h.features); err != nil {
		return schemas.Prediction{}, err
	}
	portValue, _ := vector.Get("dest_port")
	size, _ := vector.Get("packet_size")
	probs := distribution(int(portValue), size)
	return schemas.Prediction{Label: argmax(probs), Probabilities: probs}, nil
}

func distribution(port int, size float64) map[string]float64 {
	switch {
	case webPorts[port] && size <= 10:
		// SYN flood: tiny payloads against web ports.
		return probs(0.06, 0.9, 0.01, 0.03)
	case adminPorts[port] && size < 40:
		return probs(0.05, 0.02, 0.88, 0.05)
	case adminPorts[port] && size <= 50:
		// Overlaps the low end of ordinary sessions.
		return probs(0.35, 0.02, 0.6, 0.03)
	case !servicePorts[port] && !adminPorts[port] && size <= 20:
		return probs(0.08, 0.02, 0.02, 0.88)
	case webPorts[port] && size >= 1000:
		// HTTP floods share this size range with bulk transfers.
		return probs(0.62, 0.36, 0.01, 0.01)
	case !servicePorts[port] && !adminPorts[port]:
		return probs(0.7, 0.02, 0.03, 0.25)
	default:
		return probs(0.94, 0.03, 0.02, 0.01)
	}
}

func probs(normal, ddos, bruteForce, portScan float64) map[string]float64 {
	return map[string]float64{
		schemas.CategoryNormal:     normal,
		schemas.CategoryDDoS:       ddos,
		schemas.CategoryBruteForce: bruteForce,
		schemas.CategoryPortScan:   portScan,
	}
}
