// Package raftnode drives the consensus core: it wraps an etcd raft replica,
// replicates SQL commands through it, applies committed entries to the local
// engine in strict log order, and correlates each committed command back to
// the call that proposed it.
package raftnode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"raftsql/pkg/command"
	"raftsql/pkg/config"
	"raftsql/pkg/engine"
	"raftsql/pkg/storeerrors"
)

// StateMachine executes one SQL statement against local state. The node
// guarantees at most one concurrent call, serialized by log order.
type StateMachine interface {
	Execute(ctx context.Context, stmt string) (engine.Result, error)
}

// Role of a node within its current term.
type Role string

const (
	RoleFollower  Role = "follower"
	RoleCandidate Role = "candidate"
	RoleLeader    Role = "leader"
)

// Status is a point-in-time observation of the consensus core.
type Status struct {
	ID           uint64 `json:"id"`
	Role         Role   `json:"role"`
	Term         uint64 `json:"term"`
	LeaderID     uint64 `json:"leader_id"`
	LeaderAddr   string `json:"leader_addr,omitempty"`
	CommitIndex  uint64 `json:"commit_index"`
	AppliedIndex uint64 `json:"applied_index"`
}

// Node is one replica: consensus core, apply pipeline and pending request
// table. The replicated log lives in memory for the process lifetime and
// membership is fixed at start.
type Node struct {
	ID    uint64
	Peers map[uint64]string

	underlying   raft.Node
	storage      *raft.MemoryStorage
	sm           StateMachine
	transport    Transport
	tickInterval time.Duration

	pending      *pendingTable
	appliedIndex atomic.Uint64

	ctx  context.Context
	stop context.CancelFunc
}

// New builds a node from fixed cluster membership. The transport is injected
// so tests can run whole clusters in one process.
func New(cfg *config.RaftConfig, sm StateMachine, transport Transport) (*Node, error) {
	rc := toRaftConfig(cfg)
	storage := raft.NewMemoryStorage()
	rc.Storage = storage

	var (
		peers     = make(map[uint64]string, len(cfg.Peers))
		raftPeers = make([]raft.Peer, 0, len(cfg.Peers))
	)
	for _, p := range cfg.Peers {
		if _, ok := peers[p.ID]; ok {
			return nil, fmt.Errorf("duplicate peer ID %d", p.ID)
		}
		peers[p.ID] = p.Address
		raftPeers = append(raftPeers, raft.Peer{
			ID:      p.ID,
			Context: []byte(p.Address),
		})
	}
	if _, ok := peers[cfg.ID]; !ok {
		return nil, fmt.Errorf("node ID %d missing from peer list", cfg.ID)
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		ID:           cfg.ID,
		Peers:        peers,
		underlying:   raft.StartNode(rc, raftPeers),
		storage:      storage,
		sm:           sm,
		transport:    transport,
		tickInterval: tickInterval,
		pending:      newPendingTable(),
		ctx:          ctx,
		stop:         cancel,
	}, nil
}

// Run drives the protocol loop until the context is cancelled or the node is
// stopped: ticks on the election clock and processes Ready batches.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return n.ctx.Err()
		case <-ctx.Done():
			n.Stop()
			return ctx.Err()
		case <-ticker.C:
			n.underlying.Tick()
		case rd := <-n.underlying.Ready():
			if err := n.handleReady(rd); err != nil {
				return err
			}
		}
	}
}

// handleReady is the apply pipeline: one batch of entries to persist,
// messages to send and committed entries to apply, strictly in order.
func (n *Node) handleReady(rd raft.Ready) error {
	if !raft.IsEmptyHardState(rd.HardState) {
		if err := n.storage.SetHardState(rd.HardState); err != nil {
			return fmt.Errorf("set hard state: %w", err)
		}
	}
	if err := n.storage.Append(rd.Entries); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}

	n.sendMessages(rd.Messages)

	for _, entry := range rd.CommittedEntries {
		switch entry.Type {
		case raftpb.EntryNormal:
			if err := n.applyCommand(entry); err != nil {
				return fmt.Errorf("apply entry %d: %w", entry.Index, err)
			}
		case raftpb.EntryConfChange:
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				return fmt.Errorf("unmarshal conf change: %w", err)
			}
			n.underlying.ApplyConfChange(cc)
			// only the initial bootstrap conf changes ever arrive;
			// membership is fixed after start
			if cc.Type == raftpb.ConfChangeAddNode {
				n.transport.AddPeer(cc.NodeID, string(cc.Context))
			}
		}
		n.appliedIndex.Store(entry.Index)
	}

	n.underlying.Advance()
	return nil
}

func (n *Node) sendMessages(msgs []raftpb.Message) {
	for _, msg := range msgs {
		if msg.To == n.ID {
			continue
		}
		go func(m raftpb.Message) {
			if err := n.transport.Send(m); err != nil {
				slog.Error("failed to send raft message",
					"from", m.From,
					"to", m.To,
					"type", m.Type,
					"error", err)
			}
		}(msg)
	}
}

// applyCommand executes one committed command against the engine, exactly
// once, and posts the outcome to whoever proposed it. Engine failures are
// terminal for that entry: they are reported to the waiter and the pipeline
// moves on.
func (n *Node) applyCommand(entry raftpb.Entry) error {
	if len(entry.Data) == 0 {
		// raft appends an empty entry when a leader takes over
		return nil
	}

	cmd, err := command.Unmarshal(entry.Data)
	if err != nil {
		// a malformed entry could never have been proposed by this
		// codebase; treat as a protocol bug, not a statement failure
		return err
	}

	res, execErr := n.sm.Execute(n.ctx, cmd.SQL)
	if execErr != nil {
		slog.Debug("statement failed at apply",
			"index", entry.Index,
			"cmd_id", cmd.ID,
			"error", execErr)
	}

	if !n.pending.fulfill(cmd.ID, applyResult{res: res, err: execErr}) {
		// normal on every node except the originator, and on the
		// originator after a timed-out request removed its slot
		slog.Debug("no pending request for command", "cmd_id", cmd.ID)
	}
	return nil
}

// Propose replicates one command and blocks until it commits and applies
// locally, the context expires, or the node stops. Callers must only invoke
// this on the node they believe is leader; a proposal accepted by a stale
// leader is dropped by raft and surfaces as ErrProposalDropped or a timeout.
func (n *Node) Propose(ctx context.Context, cmd command.Command) (engine.Result, error) {
	data, err := cmd.Marshal()
	if err != nil {
		return engine.Result{}, err
	}

	ch := n.pending.register(cmd.ID)
	defer n.pending.remove(cmd.ID)

	if err := n.underlying.Propose(ctx, data); err != nil {
		if errors.Is(err, raft.ErrProposalDropped) {
			return engine.Result{}, storeerrors.ErrProposalDropped
		}
		return engine.Result{}, fmt.Errorf("propose: %w", err)
	}

	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return engine.Result{}, storeerrors.ErrTimeout
		}
		return engine.Result{}, ctx.Err()
	case <-n.ctx.Done():
		return engine.Result{}, storeerrors.ErrStopped
	}
}

// Step feeds a consensus message received from a peer into the replica.
func (n *Node) Step(ctx context.Context, msg raftpb.Message) error {
	return n.underlying.Step(ctx, msg)
}

func (n *Node) IsLeader() bool {
	return n.underlying.Status().Lead == n.ID
}

func (n *Node) LeaderID() uint64 {
	return n.underlying.Status().Lead
}

// LeaderAddr returns the address of the current leader, or "" when no leader
// is known.
func (n *Node) LeaderAddr() string {
	return n.Peers[n.underlying.Status().Lead]
}

func (n *Node) Status() Status {
	st := n.underlying.Status()

	role := RoleFollower
	switch st.RaftState {
	case raft.StateLeader:
		role = RoleLeader
	case raft.StateCandidate, raft.StatePreCandidate:
		role = RoleCandidate
	}

	return Status{
		ID:           n.ID,
		Role:         role,
		Term:         st.Term,
		LeaderID:     st.Lead,
		LeaderAddr:   n.Peers[st.Lead],
		CommitIndex:  st.Commit,
		AppliedIndex: n.appliedIndex.Load(),
	}
}

// Stop shuts the replica down and fails every outstanding proposal.
func (n *Node) Stop() {
	slog.Info("stopping raft node", "id", n.ID)
	n.underlying.Stop()
	n.stop()
	n.pending.drain(storeerrors.ErrStopped)
}
