package topology

import (
	"context"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"github.com/xkilldash9x/aegiscore/internal/risk"
	"go.uber.org/zap"
)

// DefaultAlertWindow is how many active alerts a projection considers.
const DefaultAlertWindow = 200

// Projector overlays active alerts on the static graph. Nothing is cached:
// every call reflects the store as it is now.
type Projector struct {
	graph  Graph
	store  schemas.AlertStore
	window int
	log    *zap.Logger
}

// NewProjector creates a Projector. A non-positive window uses DefaultAlertWindow.
func NewProjector(graph Graph, store schemas.AlertStore, window int, logger *zap.Logger) *Projector {
	if window <= 0 {
		window = DefaultAlertWindow
	}
	return &Projector{graph: graph, store: store, window: window, log: logger.Named("topology")}
}

// Project returns the graph with node status derived from active alerts that
// target each node's ip, and the store the alerts were read from. Links are
// returned unchanged.
func (p *Projector) Project(ctx context.Context) (schemas.Topology, schemas.QuerySource) {
	res := p.store.Query(ctx, p.window, schemas.FilterActive)
	if !res.Available() {
		p.log.Warn("No alert store available, projecting every node as healthy.")
	}
	return Overlay(p.graph, res.Alerts), res.Source
}

// Overlay computes node status from alerts without touching graph.
func Overlay(graph Graph, alerts []schemas.AlertRecord) schemas.Topology {
	byDest := make(map[string][]schemas.AlertRecord)
	for _, a := range alerts {
		if !a.IsActive() {
			continue
		}
		byDest[a.DestinationIP] = append(byDest[a.DestinationIP], a)
	}

	nodes := make([]schemas.TopologyNode, len(graph.Nodes))
	for i, n := range graph.Nodes {
		node := n
		node.Status = schemas.NodeHealthy
		node.Threats = 0
		node.LatestThreat = ""

		if matches := byDest[n.IP]; len(matches) > 0 {
			node.Threats = len(matches)
			node.Status = statusFor(maxRisk(matches))
			node.LatestThreat = latest(matches).PredictedLabel
		}
		nodes[i] = node
	}

	links := make([]schemas.TopologyLink, len(graph.Links))
	copy(links, graph.Links)
	return schemas.Topology{Nodes: nodes, Links: links}
}

func statusFor(score float64) schemas.NodeStatus {
	switch {
	case score >= risk.CriticalThreshold:
		return schemas.NodeCompromised
	case score >= risk.HighThreshold:
		return schemas.NodeWarning
	default:
		return schemas.NodeHealthy
	}
}

func maxRisk(alerts []schemas.AlertRecord) float64 {
	var m float64
	for _, a := range alerts {
		if a.RiskScore > m {
			m = a.RiskScore
		}
	}
	return m
}

// latest picks the most recent alert; the first one wins a timestamp tie.
func latest(alerts []schemas.AlertRecord) schemas.AlertRecord {
	best := alerts[0]
	for _, a := range alerts[1:] {
		if a.Timestamp > best.Timestamp {
			best = a
		}
	}
	return best
}
