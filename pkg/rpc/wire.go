// Package rpc defines the JSON wire format of the client-facing execute
// endpoint and implements the HTTP client used to forward statements between
// nodes.
package rpc

import (
	"errors"
	"net/http"

	"raftsql/pkg/engine"
	"raftsql/pkg/storeerrors"
)

// ExecuteRequest is the body of POST /api/execute.
type ExecuteRequest struct {
	SQL         string `json:"sql"`
	Consistency string `json:"consistency,omitempty"`
}

// ExecuteResponse is the body returned by POST /api/execute. On success
// Result is populated; on failure Error holds the message, Code the
// machine-readable class and LeaderHint the leader address when known.
type ExecuteResponse struct {
	Status       string     `json:"status"`
	Columns      []string   `json:"columns,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
	RowsAffected int64      `json:"rows_affected,omitempty"`
	Error        string     `json:"error,omitempty"`
	Code         string     `json:"code,omitempty"`
	LeaderHint   string     `json:"leader_hint,omitempty"`
}

// Error classes carried in ExecuteResponse.Code.
const (
	CodeNotLeader       = "not_leader"
	CodeNoLeader        = "no_leader"
	CodeTimeout         = "timeout"
	CodeProposalDropped = "proposal_dropped"
	CodeEngine          = "engine"
	CodeInvalid         = "invalid_argument"
	CodeStopped         = "stopped"
	CodeInternal        = "internal"
)

// ClassifyError maps a store error to its wire code and HTTP status.
func ClassifyError(err error) (code string, httpStatus int) {
	var notLeader *storeerrors.NotLeaderError
	var engineErr *storeerrors.EngineError
	switch {
	case errors.As(err, &notLeader):
		return CodeNotLeader, http.StatusMisdirectedRequest
	case errors.As(err, &engineErr):
		return CodeEngine, http.StatusBadRequest
	case errors.Is(err, storeerrors.ErrNoLeader):
		return CodeNoLeader, http.StatusServiceUnavailable
	case errors.Is(err, storeerrors.ErrTimeout):
		return CodeTimeout, http.StatusGatewayTimeout
	case errors.Is(err, storeerrors.ErrProposalDropped):
		return CodeProposalDropped, http.StatusServiceUnavailable
	case errors.Is(err, storeerrors.ErrStopped):
		return CodeStopped, http.StatusServiceUnavailable
	case errors.Is(err, storeerrors.ErrInvalidArgument):
		return CodeInvalid, http.StatusBadRequest
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

// ErrorFromResponse reconstructs the store error a remote node reported.
func ErrorFromResponse(resp ExecuteResponse) error {
	switch resp.Code {
	case CodeNotLeader:
		return &storeerrors.NotLeaderError{LeaderAddr: resp.LeaderHint}
	case CodeNoLeader:
		return storeerrors.ErrNoLeader
	case CodeTimeout:
		return storeerrors.ErrTimeout
	case CodeProposalDropped:
		return storeerrors.ErrProposalDropped
	case CodeEngine:
		return &storeerrors.EngineError{Cause: errors.New(resp.Error)}
	case CodeStopped:
		return storeerrors.ErrStopped
	case CodeInvalid:
		return storeerrors.ErrInvalidArgument
	default:
		return errors.New(resp.Error)
	}
}

// ResultFromResponse extracts the engine result from a success response.
func ResultFromResponse(resp ExecuteResponse) engine.Result {
	return engine.Result{
		Columns:      resp.Columns,
		Rows:         resp.Rows,
		RowsAffected: resp.RowsAffected,
	}
}
