// Package http exposes a raftsql node over HTTP: the client-facing execute
// endpoint, the internal consensus message endpoint, and health/status/metrics.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"raftsql/pkg/engine"
	"raftsql/pkg/metrics"
	"raftsql/pkg/raftnode"
	"raftsql/pkg/rpc"
	"raftsql/pkg/store"
)

const (
	contentTypeJSON        = "application/json"
	defaultHTTPPort        = "8080"
	defaultShutdownTimeout = time.Second * 5
)

type iStore interface {
	Execute(ctx context.Context, stmt string, level store.Consistency) (engine.Result, error)
}

type iRaftNode interface {
	Step(ctx context.Context, msg raftpb.Message) error
	Status() raftnode.Status

	Run(ctx context.Context) error
	Stop()
}

// Server is the HTTP face of one node.
type Server struct {
	store      iStore
	node       iRaftNode
	collector  *metrics.InMemory
	httpServer *http.Server
	URL        string
	addr       string
	readHeader time.Duration
}

type Option func(*Server)

// WithCollector wires the in-memory metrics collector into /metrics.
func WithCollector(c *metrics.InMemory) Option {
	return func(s *Server) {
		s.collector = c
	}
}

func WithReadHeaderTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.readHeader = d
	}
}

// NewServer creates a new server instance.
func NewServer(st iStore, node iRaftNode, port string, opts ...Option) *Server {
	if port == "" {
		port = defaultHTTPPort
	}
	s := &Server{
		store:      st,
		node:       node,
		URL:        "http://localhost:" + port,
		addr:       ":" + port,
		readHeader: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the consensus loop and begins serving HTTP.
func (s *Server) Start() error {
	go func() {
		if err := s.node.Run(context.Background()); err != nil {
			slog.Error("raft node error", "error", err)
		}
	}()
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop shuts down HTTP and the consensus loop.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	s.node.Stop()
	return nil
}

func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/api/status", s.handleStatus)
	r.Post(rpc.ExecutePath, s.handleExecute)
	r.Post(raftnode.RaftEndpoint, s.handleRaft)

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.readHeader,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("error encoding response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.node.Status())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		s.writeJSON(w, http.StatusOK, map[string]float64{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

// handleExecute serves both direct client statements and statements forwarded
// from follower nodes.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New()

	var req rpc.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, rpc.ExecuteResponse{
			Status: "error",
			Code:   rpc.CodeInvalid,
			Error:  "malformed request body",
		})
		return
	}

	level, err := store.ParseConsistency(req.Consistency)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, rpc.ExecuteResponse{
			Status: "error",
			Code:   rpc.CodeInvalid,
			Error:  err.Error(),
		})
		return
	}

	res, err := s.store.Execute(r.Context(), req.SQL, level)
	if err != nil {
		code, httpStatus := rpc.ClassifyError(err)
		slog.Debug("execute failed",
			"request_id", reqID,
			"consistency", level.String(),
			"code", code,
			"error", err)
		s.writeJSON(w, httpStatus, rpc.ExecuteResponse{
			Status:     "error",
			Code:       code,
			Error:      err.Error(),
			LeaderHint: s.node.Status().LeaderAddr,
		})
		return
	}

	slog.Debug("execute ok", "request_id", reqID, "consistency", level.String())
	s.writeJSON(w, http.StatusOK, rpc.ExecuteResponse{
		Status:       "success",
		Columns:      res.Columns,
		Rows:         res.Rows,
		RowsAffected: res.RowsAffected,
	})
}

// handleRaft ingests a consensus message from a peer.
func (s *Server) handleRaft(w http.ResponseWriter, r *http.Request) {
	var msg raftpb.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		s.writeJSON(w, http.StatusBadRequest, rpc.ExecuteResponse{
			Status: "error",
			Code:   rpc.CodeInvalid,
			Error:  err.Error(),
		})
		return
	}
	if err := s.node.Step(r.Context(), msg); err != nil {
		s.writeJSON(w, http.StatusInternalServerError, rpc.ExecuteResponse{
			Status: "error",
			Code:   rpc.CodeInternal,
			Error:  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.ExecuteResponse{Status: "success"})
}
