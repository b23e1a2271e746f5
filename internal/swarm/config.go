package swarm

import "time"

// Config collects every numeric policy spec §4.3's "Numeric and
// tie-breaking policy" names, with defaults matching the spec's stated
// values.
type Config struct {
	// ListenAddrs are the multiaddresses the runner's libp2p host
	// listens on. Failing to bind any of them is a Fatal-class
	// ListenFailed error (spec §4.3).
	ListenAddrs []string

	// FetchTimeout bounds a single FetchObject/DeleteObject attempt at
	// one provider (spec §4.3: "per-attempt timeout (default 5 s)").
	FetchTimeout time.Duration

	// OperationBudget bounds the whole Download/Delete fan-out across
	// every provider (spec §4.3: "whole-operation budget (default 20 s)").
	OperationBudget time.Duration

	// FanOut caps how many providers a Download/Delete tries, in DHT
	// arrival order (spec §4.3: "capped at an implementation-chosen
	// fan-out (≥4)").
	FanOut int

	// ReannounceInterval is how often a published fingerprint's
	// provider record is refreshed (spec §4.7: "default 10 min").
	ReannounceInterval time.Duration

	// BootstrapTimeout bounds how long Bootstrapping waits for the
	// first Kademlia bootstrap round before forcing Ready regardless
	// (spec §4.3: "or after a bounded timeout").
	BootstrapTimeout time.Duration

	// CommandDeadline is the default deadline applied to a command
	// whose caller supplies no shorter context deadline.
	CommandDeadline time.Duration

	// MaxMessageSize bounds Transfer Protocol message bodies (spec §4.8).
	MaxMessageSize uint32
}

// DefaultConfig returns Config populated with spec §4.3's stated
// defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddrs: []string{
			"/ip4/0.0.0.0/tcp/0",
			"/ip4/0.0.0.0/udp/0/quic-v1",
		},
		FetchTimeout:       5 * time.Second,
		OperationBudget:    20 * time.Second,
		FanOut:             4,
		ReannounceInterval: 10 * time.Minute,
		BootstrapTimeout:   10 * time.Second,
		CommandDeadline:    30 * time.Second,
		MaxMessageSize:     0, // 0 selects transfer.DefaultMaxMessageSize
	}
}
