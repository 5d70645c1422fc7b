package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/YarShev/omniscidb/internal/server"
)

// Topology is the parsed cluster-topology descriptor: the remote execution
// leaves and the string dictionary leaves.
type Topology struct {
	LeafServers       []server.LeafHostInfo
	StringLeafServers []server.LeafHostInfo
}

// clusterEntry is a single node record in the topology file.
type clusterEntry struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Role string `json:"role"`
}

// LoadCluster parses a cluster-topology JSON file: an array of node
// descriptors with roles "leaf" (query execution) or "string" (string
// dictionary). The legacy role name "dbleaf" is accepted as "leaf".
func LoadCluster(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cluster file %s: %w", path, err)
	}

	var entries []clusterEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing cluster file %s: %w", path, err)
	}

	topo := &Topology{}
	for i, e := range entries {
		if e.Host == "" {
			return nil, fmt.Errorf("cluster file %s entry %d: host is required", path, i)
		}
		if e.Port <= 0 || e.Port > 65535 {
			return nil, fmt.Errorf("cluster file %s entry %d: invalid port %d", path, i, e.Port)
		}

		node := server.LeafHostInfo{Host: e.Host, Port: e.Port}
		switch strings.ToLower(e.Role) {
		case "leaf", "dbleaf":
			topo.LeafServers = append(topo.LeafServers, node)
		case "string":
			topo.StringLeafServers = append(topo.StringLeafServers, node)
		default:
			return nil, fmt.Errorf("cluster file %s entry %d: unknown role %q", path, i, e.Role)
		}
	}
	return topo, nil
}
