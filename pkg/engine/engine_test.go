package engine

import (
	"context"
	"errors"
	"testing"

	"raftsql/pkg/storeerrors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New()
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_WriteAndQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Execute(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)")
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("create table returned rows: %#v", res.Rows)
	}

	res, err = e.Execute(ctx, "INSERT INTO t (id, name) VALUES (1, 'alice'), (2, 'bob')")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Fatalf("expected 2 rows affected, got %d", res.RowsAffected)
	}

	res, err = e.Execute(ctx, "SELECT id, name FROM t ORDER BY id")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "id" || res.Columns[1] != "name" {
		t.Fatalf("unexpected columns: %v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][1] != "alice" || res.Rows[1][1] != "bob" {
		t.Fatalf("unexpected rows: %#v", res.Rows)
	}
}

func TestEngine_NullRendering(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "CREATE TABLE t (x TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := e.Execute(ctx, "INSERT INTO t (x) VALUES (NULL)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	res, err := e.Query(ctx, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0][0] != "NULL" {
		t.Fatalf("expected NULL rendering, got %#v", res.Rows)
	}
}

func TestEngine_StatementErrorIsEngineError(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Execute(ctx, "NOT EVEN SQL")
	if err == nil {
		t.Fatal("expected error for malformed statement")
	}
	var engineErr *storeerrors.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError, got %T: %v", err, err)
	}
	if storeerrors.IsRetriable(err) {
		t.Fatal("engine errors must not be retriable")
	}
}

func TestEngine_ConstraintViolation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Execute(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := e.Execute(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := e.Execute(ctx, "INSERT INTO t (id) VALUES (1)")
	var engineErr *storeerrors.EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected EngineError for duplicate key, got %v", err)
	}

	// the failed statement must not have changed state
	res, err := e.Query(ctx, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if res.Rows[0][0] != "1" {
		t.Fatalf("expected 1 row in table, got %s", res.Rows[0][0])
	}
}

func TestIsQuery(t *testing.T) {
	cases := []struct {
		stmt string
		want bool
	}{
		{"SELECT * FROM t", true},
		{"  select 1", true},
		{"PRAGMA table_info(t)", true},
		{"WITH q AS (SELECT 1) SELECT * FROM q", true},
		{"INSERT INTO t VALUES (1)", false},
		{"CREATE TABLE t (x)", false},
		{"UPDATE t SET x = 1", false},
		{"DELETE FROM t", false},
	}
	for _, c := range cases {
		if got := isQuery(c.stmt); got != c.want {
			t.Fatalf("isQuery(%q) = %v, want %v", c.stmt, got, c.want)
		}
	}
}
