package schemas

// -- Topology Schemas --

// NodeStatus is the derived health of an asset.
type NodeStatus string

const (
	NodeHealthy     NodeStatus = "Healthy"
	NodeWarning     NodeStatus = "Warning"
	NodeCompromised NodeStatus = "Compromised"
)

// TopologyNode is an asset in the static network map. ID, Type, IP and the
// layout coordinates are static; Status, Threats and LatestThreat are derived
// from the live alert set on every projection and never persisted.
type TopologyNode struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
	IP   string `json:"ip" yaml:"ip"`
	X    int    `json:"x" yaml:"x"`
	Y    int    `json:"y" yaml:"y"`

	Status       NodeStatus `json:"status" yaml:"-"`
	Threats      int        `json:"threats" yaml:"-"`
	LatestThreat string     `json:"latest_threat,omitempty" yaml:"-"`
}

// TopologyLink connects two nodes by id.
type TopologyLink struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Topology is the node-link payload consumed by the visualization front end.
type Topology struct {
	Nodes []TopologyNode `json:"nodes" yaml:"nodes"`
	Links []TopologyLink `json:"links" yaml:"links"`
}
