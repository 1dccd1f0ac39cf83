package storeerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLeader means no leader is currently known to this node.
	ErrNoLeader = errors.New("raftsql: no leader")

	// ErrTimeout means the request exceeded its wait budget. The underlying
	// proposal may still commit; the caller just never learns the outcome
	// through this call.
	ErrTimeout = errors.New("raftsql: request timed out")

	// ErrProposalDropped means the consensus layer discarded the proposal
	// (leader change mid-flight). Safe to retry.
	ErrProposalDropped = errors.New("raftsql: proposal dropped")

	ErrStopped         = errors.New("raftsql: node stopped")
	ErrInvalidArgument = errors.New("raftsql: invalid argument")
)

// NotLeaderError is returned when a strong operation reaches a non-leader
// node that cannot serve it. LeaderAddr is a redirect hint and may be empty
// while an election is in progress.
type NotLeaderError struct {
	LeaderID   uint64
	LeaderAddr string
}

func (e *NotLeaderError) Error() string {
	if e.LeaderAddr == "" {
		return "raftsql: not leader"
	}
	return fmt.Sprintf("raftsql: not leader, try %s", e.LeaderAddr)
}

// EngineError wraps a statement-level failure from the local SQL engine.
// Terminal for that statement: the apply pipeline never retries it and it is
// reported verbatim to the request that caused it.
type EngineError struct {
	Cause error
}

func (e *EngineError) Error() string {
	return "raftsql: engine: " + e.Cause.Error()
}

func (e *EngineError) Unwrap() error { return e.Cause }

// IsRetriable reports whether the caller may retry the same statement.
// Consensus-level failures and timeouts are transient; engine failures are
// permanent for that statement.
func IsRetriable(err error) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return false
	}
	var notLeader *NotLeaderError
	if errors.As(err, &notLeader) {
		return true
	}
	return errors.Is(err, ErrNoLeader) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProposalDropped)
}
