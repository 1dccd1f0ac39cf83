// Package store is the public entry point for client SQL operations. It
// decides routing per statement: strong requests are linearized through the
// consensus core (forwarding to the leader when necessary), relaxed reads go
// straight to the local engine.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"raftsql/pkg/command"
	"raftsql/pkg/config"
	"raftsql/pkg/engine"
	"raftsql/pkg/metrics"
	"raftsql/pkg/storeerrors"
)

// raftNode is the slice of the consensus core the dispatch layer needs.
type raftNode interface {
	IsLeader() bool
	LeaderAddr() string
	Propose(ctx context.Context, cmd command.Command) (engine.Result, error)
}

// queryEngine is the local read path, used by relaxed reads only.
type queryEngine interface {
	Query(ctx context.Context, stmt string) (engine.Result, error)
}

// Forwarder ships a statement to another node and returns its response.
type Forwarder interface {
	Execute(ctx context.Context, addr, stmt string, level Consistency) (engine.Result, error)
}

const leaderPollInterval = 100 * time.Millisecond

// Store dispatches client statements.
type Store struct {
	cfg       config.StoreConfig
	node      raftNode
	engine    queryEngine
	forwarder Forwarder
	ids       *command.IDGenerator
	metrics   metrics.Collector
}

type Option func(*Store)

func WithMetrics(c metrics.Collector) Option {
	return func(s *Store) {
		s.metrics = c
	}
}

func New(cfg config.StoreConfig, node raftNode, eng queryEngine, fw Forwarder, ids *command.IDGenerator, opts ...Option) *Store {
	if cfg.ProposalTimeout <= 0 {
		cfg.ProposalTimeout = 5 * time.Second
	}
	if cfg.ForwardAttempts <= 0 {
		cfg.ForwardAttempts = 3
	}
	if cfg.LeaderWait <= 0 {
		cfg.LeaderWait = 10 * time.Second
	}
	s := &Store{
		cfg:       cfg,
		node:      node,
		engine:    eng,
		forwarder: fw,
		ids:       ids,
		metrics:   metrics.Noop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one SQL statement at the requested consistency level.
func (s *Store) Execute(ctx context.Context, stmt string, level Consistency) (engine.Result, error) {
	start := time.Now()
	res, err := s.execute(ctx, stmt, level)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	labels := map[string]string{"consistency": level.String(), "outcome": outcome}
	s.metrics.IncCounter("store_execute_total", labels, 1)
	s.metrics.ObserveHistogram("store_execute_seconds", labels, time.Since(start).Seconds())

	return res, err
}

func (s *Store) execute(ctx context.Context, stmt string, level Consistency) (engine.Result, error) {
	if stmt == "" {
		return engine.Result{}, storeerrors.ErrInvalidArgument
	}

	switch level {
	case RelaxedReads:
		return s.engine.Query(ctx, stmt)
	case Strong:
		return s.executeStrong(ctx, stmt)
	default:
		return engine.Result{}, storeerrors.ErrInvalidArgument
	}
}

// executeStrong routes the statement to the leader: locally when this node
// leads, otherwise forwarded over the transport. Leader discovery is retried
// a bounded number of times, covering the window where the target has
// stepped down.
func (s *Store) executeStrong(ctx context.Context, stmt string) (engine.Result, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProposalTimeout)
		defer cancel()
	}

	for attempt := 0; attempt < s.cfg.ForwardAttempts; attempt++ {
		if s.node.IsLeader() {
			return s.propose(ctx, stmt)
		}

		addr := s.node.LeaderAddr()
		if addr == "" {
			if err := s.waitForLeader(ctx); err != nil {
				return engine.Result{}, err
			}
			continue
		}

		res, err := s.forwarder.Execute(ctx, addr, stmt, Strong)
		var notLeader *storeerrors.NotLeaderError
		if errors.As(err, &notLeader) {
			// target stepped down between discovery and delivery
			slog.Debug("forward target no longer leader",
				"addr", addr,
				"hint", notLeader.LeaderAddr)
			continue
		}
		return res, err
	}

	return engine.Result{}, storeerrors.ErrNoLeader
}

func (s *Store) propose(ctx context.Context, stmt string) (engine.Result, error) {
	cmd := command.Command{
		ID:  s.ids.Next(),
		SQL: stmt,
	}
	return s.node.Propose(ctx, cmd)
}

// waitForLeader blocks until some node is believed leader, bounded by both
// the request context and the configured leader wait.
func (s *Store) waitForLeader(ctx context.Context) error {
	deadline := time.NewTimer(s.cfg.LeaderWait)
	defer deadline.Stop()

	ticker := time.NewTicker(leaderPollInterval)
	defer ticker.Stop()

	for {
		if s.node.IsLeader() || s.node.LeaderAddr() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return storeerrors.ErrTimeout
			}
			return ctx.Err()
		case <-deadline.C:
			return storeerrors.ErrNoLeader
		case <-ticker.C:
		}
	}
}
