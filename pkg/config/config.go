package config

import "time"

// Config is the root configuration for a raftsql node.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Server ServerConfig `yaml:"http-server"`
	Raft   RaftConfig   `yaml:"raft"`
	Store  StoreConfig  `yaml:"store"`
	ZK     ZKConfig     `yaml:"zookeeper"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// RaftConfig tunes the consensus core. Membership is fixed at start: Peers
// must list every node in the cluster, including this one.
type RaftConfig struct {
	ID                        uint64        `yaml:"id"`
	ElectionTick              int           `yaml:"election_tick"`
	HeartbeatTick             int           `yaml:"heartbeat_tick"`
	TickInterval              time.Duration `yaml:"tick_interval"`
	MaxSizePerMsg             uint64        `yaml:"max_size_per_msg"`
	MaxCommittedSizePerReady  uint64        `yaml:"max_committed_size_per_ready"`
	MaxUncommittedEntriesSize uint64        `yaml:"max_uncommitted_entries_size"`
	MaxInflightMsgs           int           `yaml:"max_inflight_msgs"`
	CheckQuorum               bool          `yaml:"check_quorum"`
	PreVote                   bool          `yaml:"pre_vote"`

	Peers []RaftPeerConfig `yaml:"peers"`
}

type RaftPeerConfig struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// StoreConfig tunes the dispatch layer.
type StoreConfig struct {
	// ProposalTimeout is the wait budget for a strong request when the
	// caller's context carries no deadline.
	ProposalTimeout time.Duration `yaml:"proposal_timeout"`
	// ForwardAttempts bounds leader re-discovery when a forwarded request
	// hits a node that has stepped down.
	ForwardAttempts int `yaml:"forward_attempts"`
	// LeaderWait is how long a strong request waits for an election to
	// produce a leader before giving up with ErrNoLeader.
	LeaderWait time.Duration `yaml:"leader_wait"`
}

// ZKConfig enables ZooKeeper-backed peer resolution at startup. When Servers
// is empty, the static peer table from RaftConfig is used as-is.
type ZKConfig struct {
	Servers  []string `yaml:"servers"`
	RootPath string   `yaml:"root_path"`
}

// Default returns a baseline development config for a single-node cluster.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		Raft: RaftConfig{
			ID:                        1,
			ElectionTick:              10,
			HeartbeatTick:             1,
			TickInterval:              100 * time.Millisecond,
			MaxSizePerMsg:             1024 * 1024,
			MaxCommittedSizePerReady:  16 * 1024 * 1024,
			MaxUncommittedEntriesSize: 1 << 30,
			MaxInflightMsgs:           256,
			CheckQuorum:               true,
			PreVote:                   true,
			Peers: []RaftPeerConfig{
				{ID: 1, Address: "http://127.0.0.1:8080"},
			},
		},
		Store: StoreConfig{
			ProposalTimeout: 5 * time.Second,
			ForwardAttempts: 3,
			LeaderWait:      10 * time.Second,
		},
		ZK: ZKConfig{
			RootPath: "/raftsql",
		},
	}
}
