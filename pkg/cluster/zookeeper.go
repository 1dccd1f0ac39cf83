package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"raftsql/pkg/config"
)

const zkSessionTimeout = 5 * time.Second

// ZKRegistry registers this node in ZooKeeper and resolves the peer set once
// at startup. The ephemeral node doubles as a liveness marker for operators;
// the resolved membership is still fixed for the process lifetime.
type ZKRegistry struct {
	conn     *zk.Conn
	rootPath string
	nodeID   uint64
	addr     string
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKRegistry(servers []string, rootPath string, nodeID uint64, addr string) (*ZKRegistry, error) {
	conn, _, err := zk.Connect(servers, zkSessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKRegistry{
		conn:     conn,
		rootPath: rootPath,
		nodeID:   nodeID,
		addr:     addr,
	}, nil
}

func (r *ZKRegistry) Close() error {
	r.conn.Close()
	return nil
}

func (r *ZKRegistry) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.conn.State() == zk.StateHasSession {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("zk session not established within %s", timeout)
}

func (r *ZKRegistry) ensurePath(path string) error {
	cur := ""
	for _, p := range strings.Split(path, "/") {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := r.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = r.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

// RegisterSelf creates an ephemeral znode for this node, keyed by raft id,
// holding its address.
func (r *ZKRegistry) RegisterSelf() error {
	if err := r.waitConnected(10 * time.Second); err != nil {
		return err
	}

	if err := r.ensurePath(r.rootPath + "/nodes"); err != nil {
		return fmt.Errorf("ensure nodes path: %w", err)
	}

	nodePath := fmt.Sprintf("%s/nodes/%d", r.rootPath, r.nodeID)
	_, err := r.conn.Create(nodePath, []byte(r.addr), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create ephemeral node: %w", err)
	}
	return nil
}

// ResolvePeers reads the registered nodes once and returns them as a peer
// list, sorted by id.
func (r *ZKRegistry) ResolvePeers() ([]config.RaftPeerConfig, error) {
	children, _, err := r.conn.Children(r.rootPath + "/nodes")
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}

	peers := make([]config.RaftPeerConfig, 0, len(children))
	for _, child := range children {
		id, err := strconv.ParseUint(child, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed node id %q: %w", child, err)
		}
		data, _, err := r.conn.Get(fmt.Sprintf("%s/nodes/%s", r.rootPath, child))
		if err != nil {
			return nil, fmt.Errorf("zk get node %s: %w", child, err)
		}
		peers = append(peers, config.RaftPeerConfig{ID: id, Address: string(data)})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers, nil
}
