// Package dht wraps go-libp2p-kad-dht down to exactly the three
// operations the Swarm Runner needs (spec §4.3 item 1, §4.7):
// put-provider, get-providers, bootstrap. The core never stores DHT
// values — only provider records — so this package has no Put/Get for
// arbitrary keys, just providers keyed by content fingerprint.
package dht

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	kaddht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mh "github.com/multiformats/go-multihash"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/logging"
)

var log = logging.Named(logging.DHT)

// DefaultReannounceInterval is how often a published object's provider
// record is refreshed while its node stays Running (spec §4.7: "fixed
// interval (default 10 min)").
const DefaultReannounceInterval = 10 * time.Minute

// DHT is a per-node Kademlia handle plus the bookkeeping for its
// provider re-announce loops.
type DHT struct {
	kad                *kaddht.IpfsDHT
	reannounceInterval time.Duration

	mu      sync.Mutex
	cancels map[fingerprint.Fingerprint]context.CancelFunc
}

// New constructs a DHT in server mode over host h, so it both issues
// Kademlia queries and answers other peers' queries. The caller is
// responsible for calling Bootstrap afterward.
func New(ctx context.Context, h host.Host, reannounceInterval time.Duration) (*DHT, error) {
	kad, err := kaddht.New(ctx, h, kaddht.Mode(kaddht.ModeServer))
	if err != nil {
		return nil, fmt.Errorf("%w: construct kademlia dht: %v", errs.ErrListenFailed, err)
	}
	if reannounceInterval <= 0 {
		reannounceInterval = DefaultReannounceInterval
	}
	return &DHT{
		kad:                kad,
		reannounceInterval: reannounceInterval,
		cancels:            make(map[fingerprint.Fingerprint]context.CancelFunc),
	}, nil
}

// Bootstrap runs one Kademlia bootstrap round. The Swarm Runner treats
// its return (or a bounded timeout) as the Bootstrapping→Ready
// transition (spec §4.3).
func (d *DHT) Bootstrap(ctx context.Context) error {
	if err := d.kad.Bootstrap(ctx); err != nil {
		return fmt.Errorf("%w: dht bootstrap: %v", errs.ErrDial, err)
	}
	return nil
}

// RoutingTableSize reports how many peers this node's Kademlia routing
// table currently holds — used by PutProvider to accept a local-only
// provider record when no peers are known yet.
func (d *DHT) RoutingTableSize() int {
	return d.kad.RoutingTable().Size()
}

// PutProvider announces this node as a provider of fp and starts its
// periodic re-announce loop, if one is not already running, for as long
// as the DHT stays open. With an empty routing table the record is kept
// locally only and the call still succeeds; the re-announce loop pushes
// it out once peers are known. Call StopProviding to end the loop (e.g.
// after a successful local delete).
func (d *DHT) PutProvider(ctx context.Context, fp fingerprint.Fingerprint) error {
	c, err := toCID(fp)
	if err != nil {
		return err
	}
	if err := d.kad.Provide(ctx, c, true); err != nil {
		if d.RoutingTableSize() > 0 {
			return fmt.Errorf("%w: put provider record: %v", errs.ErrDial, err)
		}
		log.Debugw("no peers known, provider record kept locally", "fingerprint", fp.String(), "err", err)
	}
	d.startReannounce(fp, c)
	return nil
}

// GetProviders returns up to count provider peer IDs known for fp,
// combining the DHT's local provider cache with any network responses
// that arrive before ctx is done (spec §4.3: "union of locally-cached
// and network-returned providers"). An empty, non-error result is valid.
func (d *DHT) GetProviders(ctx context.Context, fp fingerprint.Fingerprint, count int) ([]peer.ID, error) {
	c, err := toCID(fp)
	if err != nil {
		return nil, err
	}

	var out []peer.ID
	seen := make(map[peer.ID]struct{})
	for info := range d.kad.FindProvidersAsync(ctx, c, count) {
		if info.ID == "" {
			continue
		}
		if _, dup := seen[info.ID]; dup {
			continue
		}
		seen[info.ID] = struct{}{}
		out = append(out, info.ID)
	}
	return out, nil
}

// StopProviding cancels fp's re-announce loop, if one is running. It
// does not retract the provider record itself — Kademlia provider
// records expire on their own; the core relies on that expiry plus the
// Delete protocol's explicit DeleteObject fan-out (spec §4.3) to make
// deletion observable.
func (d *DHT) StopProviding(fp fingerprint.Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.cancels[fp]; ok {
		cancel()
		delete(d.cancels, fp)
	}
}

// Close tears down every re-announce loop and the underlying DHT.
func (d *DHT) Close() error {
	d.mu.Lock()
	for fp, cancel := range d.cancels {
		cancel()
		delete(d.cancels, fp)
	}
	d.mu.Unlock()
	return d.kad.Close()
}

func (d *DHT) startReannounce(fp fingerprint.Fingerprint, c cid.Cid) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.cancels[fp]; exists {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancels[fp] = cancel

	go func() {
		ticker := time.NewTicker(d.reannounceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reannounceCtx, done := context.WithTimeout(ctx, d.reannounceInterval/2)
				if err := d.kad.Provide(reannounceCtx, c, true); err != nil {
					log.Warnw("provider re-announce failed", "fingerprint", fp.String(), "err", err)
				}
				done()
			}
		}
	}()
}

// toCID maps a 32-byte content fingerprint onto the CID the underlying
// DHT library requires as a key. The fingerprint is already a
// uniformly-distributed 32-byte digest (spec §4.7), so it is wrapped
// as-is in an identity multihash rather than hashed again.
func toCID(fp fingerprint.Fingerprint) (cid.Cid, error) {
	digest, err := mh.Sum(fp[:], mh.IDENTITY, len(fp))
	if err != nil {
		return cid.Cid{}, fmt.Errorf("%w: wrap fingerprint as multihash: %v", errs.ErrBadFingerprint, err)
	}
	return cid.NewCidV1(cid.Raw, digest), nil
}
