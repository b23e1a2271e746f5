// Package logging hands out one named logger per subsystem, the same
// pattern every libp2p-based daemon in the retrieved example pack uses:
// github.com/ipfs/go-log/v2 wraps zap and honors GOLOG_LOG_LEVEL, so an
// operator can turn up "swarm" or "dht" chatter independently at runtime
// without a redeploy.
package logging

import logging "github.com/ipfs/go-log/v2"

// Logger is the type every subsystem constructor accepts.
type Logger = logging.EventLogger

// Subsystem names, kept centralized so GOLOG_LOG_LEVEL="swarm=debug"
// style overrides stay discoverable from one place.
const (
	Swarm       = "swarm"
	Node        = "node"
	Manager     = "manager"
	DHT         = "dht"
	Transfer    = "transfer"
	ObjectStore = "objectstore"
	Control     = "control"
	NodeStore   = "nodestore"
)

// Named returns the logger for subsystem, creating it on first use.
func Named(subsystem string) Logger {
	return logging.Logger(subsystem)
}
