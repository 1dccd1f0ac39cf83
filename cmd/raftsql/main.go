package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	httpapi "raftsql/internal/http"
	"raftsql/pkg/cluster"
	"raftsql/pkg/command"
	"raftsql/pkg/engine"
	"raftsql/pkg/metrics"
	"raftsql/pkg/raftnode"
	"raftsql/pkg/rpc"
	"raftsql/pkg/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	localAddr := flag.String("addr", "", "advertised address of this node (required with ZooKeeper)")
	flag.Parse()

	cfg, err := initConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// With ZooKeeper configured, the peer table comes from the registry,
	// resolved once; membership stays fixed for the process lifetime.
	if len(cfg.ZK.Servers) > 0 {
		if *localAddr == "" {
			fmt.Fprintln(os.Stderr, "-addr is required when zookeeper.servers is set")
			os.Exit(1)
		}
		registry, err := cluster.NewZKRegistry(cfg.ZK.Servers, cfg.ZK.RootPath, cfg.Raft.ID, *localAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect to ZooKeeper: %v\n", err)
			os.Exit(1)
		}
		defer registry.Close()

		if err := registry.RegisterSelf(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to register node in ZooKeeper: %v\n", err)
			os.Exit(1)
		}
		peers, err := registry.ResolvePeers()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve peers from ZooKeeper: %v\n", err)
			os.Exit(1)
		}
		cfg.Raft.Peers = peers
	}

	peerMap, err := cluster.PeerMap(cfg.Raft.Peers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid peer table: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	transport := raftnode.NewHTTPTransport(peerMap)
	node, err := raftnode.New(&cfg.Raft, eng, transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start raft node: %v\n", err)
		os.Exit(1)
	}

	collector := metrics.NewInMemory()
	ids := command.NewIDGenerator(cfg.Raft.ID, time.Now())
	st := store.New(cfg.Store, node, eng, rpc.NewClient(), ids, store.WithMetrics(collector))

	server := httpapi.NewServer(st, node, strconv.Itoa(cfg.Server.Port),
		httpapi.WithCollector(collector),
		httpapi.WithReadHeaderTimeout(cfg.Server.ReadHeaderTimeout))

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(1)
	}
	slog.Info("raftsql node started",
		"id", cfg.Raft.ID,
		"peers", len(cfg.Raft.Peers),
		"addr", server.URL)

	<-ctx.Done()

	slog.Info("shutting down")
	if err := server.Stop(); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
