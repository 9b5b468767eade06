// Package topology projects live alert state onto a static asset graph.
package topology

import (
	"fmt"
	"os"

	"github.com/xkilldash9x/aegiscore/api/schemas"
	"gopkg.in/yaml.v3"
)

// Graph is the static asset map. It is never mutated after loading.
type Graph struct {
	Nodes []schemas.TopologyNode `yaml:"nodes"`
	Links []schemas.TopologyLink `yaml:"links"`
}

// DefaultGraph returns the built-in eight node network.
func DefaultGraph() Graph {
	return Graph{
		Nodes: []schemas.TopologyNode{
			{ID: "firewall-1", Type: "Firewall", IP: "192.168.1.1", X: 100, Y: 50},
			{ID: "router-core", Type: "Router", IP: "10.0.0.1", X: 250, Y: 50},
			{ID: "switch-main", Type: "Switch", IP: "10.0.0.2", X: 250, Y: 150},
			{ID: "server-db", Type: "Database", IP: "10.0.0.5", X: 150, Y: 250},
			{ID: "server-app", Type: "Server", IP: "10.0.0.10", X: 350, Y: 250},
			{ID: "workstation-1", Type: "Client", IP: "10.0.0.15", X: 100, Y: 350},
			{ID: "workstation-2", Type: "Client", IP: "10.0.0.16", X: 250, Y: 350},
			{ID: "workstation-3", Type: "Client", IP: "10.0.0.17", X: 400, Y: 350},
		},
		Links: []schemas.TopologyLink{
			{Source: "firewall-1", Target: "router-core"},
			{Source: "router-core", Target: "switch-main"},
			{Source: "switch-main", Target: "server-db"},
			{Source: "switch-main", Target: "server-app"},
			{Source: "switch-main", Target: "workstation-1"},
			{Source: "switch-main", Target: "workstation-2"},
			{Source: "switch-main", Target: "workstation-3"},
		},
	}
}

// LoadGraph reads a graph from a YAML file. An empty path yields the default graph.
func LoadGraph(path string) (Graph, error) {
	if path == "" {
		return DefaultGraph(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to read topology file: %w", err)
	}
	var g Graph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Graph{}, fmt.Errorf("failed to parse topology file: %w", err)
	}
	if err := g.Validate(); err != nil {
		return Graph{}, fmt.Errorf("invalid topology file %s: %w", path, err)
	}
	return g, nil
}

// Validate checks that node ids are unique and every link joins known nodes.
func (g Graph) Validate() error {
	if len(g.Nodes) == 0 {
		return fmt.Errorf("graph has no nodes")
	}
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node with empty id")
		}
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	for _, l := range g.Links {
		if _, ok := seen[l.Source]; !ok {
			return fmt.Errorf("link references unknown node %q", l.Source)
		}
		if _, ok := seen[l.Target]; !ok {
			return fmt.Errorf("link references unknown node %q", l.Target)
		}
	}
	return nil
}
