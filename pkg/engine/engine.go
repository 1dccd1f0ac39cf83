// Package engine wraps a private in-memory SQLite instance and executes one
// SQL statement at a time against it. It knows nothing about replication:
// serialization of writes is the caller's responsibility.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"raftsql/pkg/storeerrors"
)

// Result is the outcome of executing a single statement: rows for queries,
// an affected-row count for writes. NULL values are rendered as "NULL".
type Result struct {
	Columns      []string   `json:"columns,omitempty"`
	Rows         [][]string `json:"rows,omitempty"`
	RowsAffected int64      `json:"rows_affected,omitempty"`
}

// Engine is a single-connection handle to an in-memory SQLite database.
// The database lives for the lifetime of the process.
type Engine struct {
	db *sql.DB
}

// New opens a fresh in-memory database. The pool is pinned to a single
// connection: an in-memory SQLite database is private to its connection, and
// the apply pipeline serializes writes anyway.
func New() (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &Engine{db: db}, nil
}

// Execute runs one statement and returns its result. Queries return rows,
// everything else returns the affected-row count. Statement-level failures
// (malformed SQL, constraint violations) come back as *storeerrors.EngineError.
func (e *Engine) Execute(ctx context.Context, stmt string) (Result, error) {
	if isQuery(stmt) {
		return e.Query(ctx, stmt)
	}

	res, err := e.db.ExecContext(ctx, stmt)
	if err != nil {
		return Result{}, &storeerrors.EngineError{Cause: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, &storeerrors.EngineError{Cause: err}
	}
	return Result{RowsAffected: affected}, nil
}

// Query runs a statement through the read path and collects all rows. Used
// directly for relaxed reads, which bypass consensus.
func (e *Engine) Query(ctx context.Context, stmt string) (Result, error) {
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return Result{}, &storeerrors.EngineError{Cause: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, &storeerrors.EngineError{Cause: err}
	}

	result := Result{Columns: cols}
	for rows.Next() {
		scanned := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range scanned {
			dest[i] = &scanned[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return Result{}, &storeerrors.EngineError{Cause: err}
		}
		row := make([]string, len(cols))
		for i, v := range scanned {
			if v.Valid {
				row[i] = v.String
			} else {
				row[i] = "NULL"
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, &storeerrors.EngineError{Cause: err}
	}
	return result, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// isQuery reports whether the statement goes through the read path.
func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	for _, prefix := range []string{"SELECT", "PRAGMA", "EXPLAIN", "VALUES", "WITH"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}
