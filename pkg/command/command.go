// Package command defines the unit of replication: a SQL statement tagged
// with a node-unique id that correlates the eventual commit back to the
// request that proposed it.
package command

import (
	"encoding/json"
	"fmt"
)

// Command is one replicated SQL statement. Immutable once created: it is
// encoded into a raft log entry on the proposing node and decoded by the
// apply pipeline on every node.
type Command struct {
	ID  uint64 `json:"id"`
	SQL string `json:"sql"`
}

// Marshal encodes the command for storage in a raft log entry.
func (c Command) Marshal() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal command %d: %w", c.ID, err)
	}
	return data, nil
}

// Unmarshal decodes a command from raft log entry data.
func Unmarshal(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("unmarshal command: %w", err)
	}
	return c, nil
}
