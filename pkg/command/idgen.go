package command

import (
	"sync/atomic"
	"time"
)

const (
	tsLen  = 40
	cntLen = 8
	tsMask = uint64(1)<<tsLen - 1
)

// IDGenerator hands out command ids unique to this node for the lifetime of
// the process. Layout, high to low: 16 bits of node id, 40 bits of start
// timestamp in milliseconds, 8 bits rolling into a plain counter. Ids from
// different nodes never collide; ids from one node are strictly increasing.
// No cross-restart guarantee is made — the log does not survive the process.
type IDGenerator struct {
	prefix uint64
	suffix atomic.Uint64
}

func NewIDGenerator(nodeID uint64, now time.Time) *IDGenerator {
	g := &IDGenerator{
		prefix: nodeID << (tsLen + cntLen),
	}
	ms := uint64(now.UnixMilli()) & tsMask
	g.suffix.Store(ms << cntLen)
	return g
}

// Next returns the next command id.
func (g *IDGenerator) Next() uint64 {
	return g.prefix | g.suffix.Add(1)
}
