package raftnode

import (
	"github.com/zhangyunhao116/skipmap"

	"raftsql/pkg/engine"
)

// applyResult is what the apply pipeline posts back for one command: either
// the engine result or the engine error, never both.
type applyResult struct {
	res engine.Result
	err error
}

// pendingTable maps in-flight command ids to single-fulfillment result slots.
// Discipline: the apply pipeline is the only writer (fulfill), the proposing
// call is the only remover (remove, deferred). A fulfillment arriving after
// removal misses the lookup and is dropped — that miss is also the normal
// case on every node that did not originate the command.
type pendingTable struct {
	entries *skipmap.FuncMap[uint64, chan applyResult]
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: skipmap.NewFunc[uint64, chan applyResult](func(a, b uint64) bool {
			return a < b
		}),
	}
}

// register creates the result slot for a command about to be proposed.
func (t *pendingTable) register(id uint64) chan applyResult {
	ch := make(chan applyResult, 1)
	t.entries.Store(id, ch)
	return ch
}

// remove discards the slot. Called by the proposer once it has read the
// result or given up waiting.
func (t *pendingTable) remove(id uint64) {
	t.entries.Delete(id)
}

// fulfill delivers the outcome for id, if anyone is still waiting. The send
// never blocks: the slot is buffered and written at most once per id.
func (t *pendingTable) fulfill(id uint64, r applyResult) bool {
	ch, ok := t.entries.Load(id)
	if !ok {
		return false
	}
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}

// drain fails every outstanding slot with err. Used on shutdown.
func (t *pendingTable) drain(err error) {
	t.entries.Range(func(id uint64, ch chan applyResult) bool {
		select {
		case ch <- applyResult{err: err}:
		default:
		}
		return true
	})
}
