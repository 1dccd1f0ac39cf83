// Package cluster resolves the fixed peer table a node starts with: either
// straight from configuration or from a ZooKeeper registry read once at
// startup. Membership never changes after that.
package cluster

import (
	"fmt"

	"raftsql/pkg/config"
)

// PeerMap builds the id→address table from static configuration.
func PeerMap(peers []config.RaftPeerConfig) (map[uint64]string, error) {
	if len(peers) == 0 {
		return nil, fmt.Errorf("empty peer list")
	}
	m := make(map[uint64]string, len(peers))
	for _, p := range peers {
		if p.ID == 0 {
			return nil, fmt.Errorf("peer ID must be nonzero")
		}
		if p.Address == "" {
			return nil, fmt.Errorf("peer %d has empty address", p.ID)
		}
		if _, dup := m[p.ID]; dup {
			return nil, fmt.Errorf("duplicate peer ID %d", p.ID)
		}
		m[p.ID] = p.Address
	}
	return m, nil
}
