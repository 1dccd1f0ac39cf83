package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"raftsql/pkg/engine"
	"raftsql/pkg/metrics"
	"raftsql/pkg/raftnode"
	"raftsql/pkg/rpc"
	"raftsql/pkg/store"
	"raftsql/pkg/storeerrors"
)

type fakeStore struct {
	mu     sync.Mutex
	stmts  []string
	levels []store.Consistency
	result engine.Result
	err    error
}

func (f *fakeStore) Execute(_ context.Context, stmt string, level store.Consistency) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stmts = append(f.stmts, stmt)
	f.levels = append(f.levels, level)
	return f.result, f.err
}

type fakeRaftNode struct {
	mu      sync.Mutex
	stepped []raftpb.Message
	status  raftnode.Status
}

func (f *fakeRaftNode) Step(_ context.Context, msg raftpb.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stepped = append(f.stepped, msg)
	return nil
}

func (f *fakeRaftNode) Status() raftnode.Status       { return f.status }
func (f *fakeRaftNode) Run(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (f *fakeRaftNode) Stop()                         {}

func newTestServer(st *fakeStore, node *fakeRaftNode, opts ...Option) *httptest.Server {
	s := NewServer(st, node, "0", opts...)
	return httptest.NewServer(s.createRouter())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, contentTypeJSON, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeExecute(t *testing.T, resp *http.Response) rpc.ExecuteResponse {
	t.Helper()
	defer resp.Body.Close()
	var out rpc.ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleExecuteSuccess(t *testing.T) {
	st := &fakeStore{result: engine.Result{
		Columns: []string{"x"},
		Rows:    [][]string{{"1"}},
	}}
	ts := newTestServer(st, &fakeRaftNode{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+rpc.ExecutePath, rpc.ExecuteRequest{
		SQL:         "SELECT x FROM t",
		Consistency: "relaxed_reads",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decodeExecute(t, resp)
	if out.Status != "success" || len(out.Rows) != 1 || out.Rows[0][0] != "1" {
		t.Fatalf("unexpected response: %+v", out)
	}
	if len(st.levels) != 1 || st.levels[0] != store.RelaxedReads {
		t.Fatalf("unexpected consistency: %v", st.levels)
	}
}

func TestHandleExecuteDefaultsToStrong(t *testing.T) {
	st := &fakeStore{}
	ts := newTestServer(st, &fakeRaftNode{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+rpc.ExecutePath, rpc.ExecuteRequest{SQL: "INSERT INTO t VALUES (1)"})
	defer resp.Body.Close()

	if len(st.levels) != 1 || st.levels[0] != store.Strong {
		t.Fatalf("expected Strong default, got %v", st.levels)
	}
}

func TestHandleExecuteNotLeaderCarriesHint(t *testing.T) {
	st := &fakeStore{err: &storeerrors.NotLeaderError{LeaderAddr: "http://leader:8080"}}
	node := &fakeRaftNode{status: raftnode.Status{LeaderAddr: "http://leader:8080"}}
	ts := newTestServer(st, node)
	defer ts.Close()

	resp := postJSON(t, ts.URL+rpc.ExecutePath, rpc.ExecuteRequest{SQL: "INSERT INTO t VALUES (1)"})
	if resp.StatusCode != http.StatusMisdirectedRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decodeExecute(t, resp)
	if out.Code != rpc.CodeNotLeader || out.LeaderHint != "http://leader:8080" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestHandleExecuteEngineError(t *testing.T) {
	st := &fakeStore{err: &storeerrors.EngineError{Cause: context.DeadlineExceeded}}
	ts := newTestServer(st, &fakeRaftNode{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+rpc.ExecutePath, rpc.ExecuteRequest{SQL: "NOT SQL"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decodeExecute(t, resp)
	if out.Code != rpc.CodeEngine {
		t.Fatalf("unexpected code: %q", out.Code)
	}
}

func TestHandleExecuteMalformedBody(t *testing.T) {
	ts := newTestServer(&fakeStore{}, &fakeRaftNode{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+rpc.ExecutePath, contentTypeJSON, bytes.NewReader([]byte("{broken")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHandleRaftStepsMessage(t *testing.T) {
	node := &fakeRaftNode{}
	ts := newTestServer(&fakeStore{}, node)
	defer ts.Close()

	msg := raftpb.Message{Type: raftpb.MsgHeartbeat, From: 2, To: 1, Term: 3}
	resp := postJSON(t, ts.URL+raftnode.RaftEndpoint, msg)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	node.mu.Lock()
	defer node.mu.Unlock()
	if len(node.stepped) != 1 || node.stepped[0].Type != raftpb.MsgHeartbeat || node.stepped[0].From != 2 {
		t.Fatalf("unexpected stepped messages: %+v", node.stepped)
	}
}

func TestHandleStatus(t *testing.T) {
	node := &fakeRaftNode{status: raftnode.Status{
		ID:       1,
		Role:     raftnode.RoleLeader,
		Term:     4,
		LeaderID: 1,
	}}
	ts := newTestServer(&fakeStore{}, node)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()

	var st raftnode.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Role != raftnode.RoleLeader || st.Term != 4 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestHandleMetrics(t *testing.T) {
	collector := metrics.NewInMemory()
	collector.IncCounter("store_execute_total", nil, 2)

	ts := newTestServer(&fakeStore{}, &fakeRaftNode{}, WithCollector(collector))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	var snap map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap["store_execute_total"] != 2 {
		t.Fatalf("unexpected metrics: %v", snap)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(&fakeStore{}, &fakeRaftNode{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
