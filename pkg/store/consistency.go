package store

import (
	"fmt"

	"raftsql/pkg/storeerrors"
)

// Consistency selects how a statement is routed.
type Consistency int

const (
	// Strong linearizes the statement through consensus on the leader.
	Strong Consistency = iota
	// RelaxedReads serves the statement from local state without consensus.
	// May observe stale data relative to the global commit order.
	RelaxedReads
)

func (c Consistency) String() string {
	switch c {
	case Strong:
		return "strong"
	case RelaxedReads:
		return "relaxed_reads"
	default:
		return fmt.Sprintf("consistency(%d)", int(c))
	}
}

func (c Consistency) MarshalText() ([]byte, error) {
	switch c {
	case Strong, RelaxedReads:
		return []byte(c.String()), nil
	default:
		return nil, fmt.Errorf("%w: unknown consistency %d", storeerrors.ErrInvalidArgument, int(c))
	}
}

func (c *Consistency) UnmarshalText(text []byte) error {
	parsed, err := ParseConsistency(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseConsistency maps the wire name to a level. An empty string means
// Strong: the safe default for callers that do not ask for anything weaker.
func ParseConsistency(s string) (Consistency, error) {
	switch s {
	case "", "strong":
		return Strong, nil
	case "relaxed_reads", "relaxed":
		return RelaxedReads, nil
	default:
		return Strong, fmt.Errorf("%w: unknown consistency %q", storeerrors.ErrInvalidArgument, s)
	}
}
