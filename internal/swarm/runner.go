// Package swarm composes the Kademlia DHT, the Transfer Protocol, and
// (optionally) libp2p's ping protocol into one per-node event loop — the
// Swarm Runner spec §4.3 describes. A Runner owns exactly one libp2p
// host and is driven by a single goroutine that dequeues command
// closures off cmdCh, so every command against one node is processed to
// completion before the next begins; the Node Actor above adds the
// mailbox that callers actually see.
package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liberum-neto/liberum-neto/internal/dht"
	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/identity"
	"github.com/liberum-neto/liberum-neto/internal/logging"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/transfer"
)

var log = logging.Named(logging.Swarm)

// State is one of the lifecycle states spec §4.3 names for a running
// node: Created → Listening → Bootstrapping → Ready → Stopping → Stopped.
type State int32

const (
	StateCreated State = iota
	StateListening
	StateBootstrapping
	StateReady
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateListening:
		return "Listening"
	case StateBootstrapping:
		return "Bootstrapping"
	case StateReady:
		return "Ready"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// DeleteSummary aggregates a Delete command's outcome across the local
// store and every remote provider contacted (spec §4.3: "{deleted_myself:
// bool, successful: u64, failed: u64}").
type DeleteSummary struct {
	DeletedMyself bool
	Successful    uint64
	Failed        uint64
}

// Runner is one node's Swarm Runner: a libp2p host plus the DHT and
// Transfer Protocol behaviours layered over it.
type Runner struct {
	cfg     Config
	host    host.Host
	dht     *dht.DHT
	store   *objectstore.Store
	xfer    *transfer.Service
	keypair identity.Keypair
	peerID  peer.ID
	metrics *Metrics

	cmdCh     chan func()
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu            sync.Mutex
	state         State
	nextQueryID   uint64
	pending       map[uint64]context.CancelFunc
	externalAddrs []ma.Multiaddr
}

// NewRunner constructs and starts listening a Swarm Runner for keypair
// over store, dialing no peers yet. A failure to bind any listen
// address is a Fatal-class ListenFailed error (spec §4.3).
func NewRunner(cfg Config, keypair identity.Keypair, store *objectstore.Store, externalAddrs []ma.Multiaddr) (*Runner, error) {
	priv, err := keypair.LibP2PPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrListenFailed, err)
	}
	peerID, err := keypair.PeerID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrListenFailed, err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
	}
	if len(externalAddrs) > 0 {
		opts = append(opts, libp2p.AddrsFactory(func(_ []ma.Multiaddr) []ma.Multiaddr {
			return externalAddrs
		}))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: construct libp2p host: %v", errs.ErrListenFailed, err)
	}

	ctx := context.Background()
	kadDHT, err := dht.New(ctx, h, cfg.ReannounceInterval)
	if err != nil {
		_ = h.Close()
		return nil, err
	}

	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize == 0 {
		maxMessageSize = transfer.DefaultMaxMessageSize
	}

	r := &Runner{
		cfg:           cfg,
		host:          h,
		dht:           kadDHT,
		store:         store,
		keypair:       keypair,
		peerID:        peerID,
		metrics:       newMetrics(),
		cmdCh:         make(chan func(), 16),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		state:         StateListening,
		pending:       make(map[uint64]context.CancelFunc),
		externalAddrs: externalAddrs,
	}
	r.xfer = transfer.NewService(h, storeBackend{store: store}, maxMessageSize)
	r.xfer.Start()

	go r.run()
	log.Infow("swarm runner listening", "peer", peerID.String(), "addrs", h.Addrs())
	return r, nil
}

// Collectors exposes this runner's own metrics plus its Transfer
// Protocol service's metrics for registration. The DHT contributes none.
func (r *Runner) Collectors() []prometheus.Collector {
	cs := r.metrics.Collectors()
	cs = append(cs, r.xfer.Collectors()...)
	return cs
}

// PeerID returns this node's libp2p peer ID.
func (r *Runner) PeerID() peer.ID { return r.peerID }

// Addrs returns this node's current listen addresses.
func (r *Runner) Addrs() []ma.Multiaddr { return r.host.Addrs() }

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Bootstrap drives Bootstrapping → Ready: it runs one Kademlia
// bootstrap round bounded by cfg.BootstrapTimeout, entering Ready
// whichever comes first (spec §4.3).
func (r *Runner) Bootstrap(ctx context.Context) {
	r.mu.Lock()
	r.state = StateBootstrapping
	r.mu.Unlock()

	bctx, cancel := context.WithTimeout(ctx, r.cfg.BootstrapTimeout)
	defer cancel()
	if err := r.dht.Bootstrap(bctx); err != nil {
		log.Warnw("bootstrap round did not complete cleanly, proceeding to Ready anyway", "peer", r.peerID.String(), "err", err)
	}

	r.mu.Lock()
	r.state = StateReady
	r.mu.Unlock()
	log.Infow("swarm runner ready", "peer", r.peerID.String())
}

// run is the runner's single event loop: it alternates between driving
// the swarm's background work (handled by the DHT's own re-announce
// goroutines) and dequeuing command closures, each run to completion
// before the next begins.
func (r *Runner) run() {
	defer close(r.stoppedCh)
	for {
		select {
		case <-r.stopCh:
			return
		case fn := <-r.cmdCh:
			fn()
		}
	}
}

func (r *Runner) checkReady() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateReady && r.state != StateBootstrapping && r.state != StateListening {
		return errs.ErrNotConnected
	}
	return nil
}

func (r *Runner) beginQuery(parent context.Context, timeout time.Duration) (uint64, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	r.mu.Lock()
	r.nextQueryID++
	qid := r.nextQueryID
	r.pending[qid] = cancel
	r.mu.Unlock()
	r.metrics.queriesInflight.Inc()
	return qid, ctx, cancel
}

func (r *Runner) endQuery(qid uint64, cancel context.CancelFunc) {
	r.mu.Lock()
	delete(r.pending, qid)
	r.mu.Unlock()
	cancel()
	r.metrics.queriesInflight.Dec()
}

// submit runs fn on the runner's single event-loop goroutine and
// returns its result, respecting ctx's deadline both while the closure
// is queued and while it runs.
func submit[T any](r *Runner, ctx context.Context, timeout time.Duration, fn func(context.Context) T) (T, error) {
	var zero T
	qid, qctx, cancel := r.beginQuery(ctx, timeout)
	defer r.endQuery(qid, cancel)

	resultCh := make(chan T, 1)
	select {
	case r.cmdCh <- func() { resultCh <- fn(qctx) }:
	case <-qctx.Done():
		return zero, fmt.Errorf("%w: %v", errs.ErrCancelled, qctx.Err())
	}

	select {
	case res := <-resultCh:
		return res, nil
	case <-qctx.Done():
		return zero, fmt.Errorf("%w: %v", errs.ErrCancelled, qctx.Err())
	}
}

type dialResult struct{ err error }

// Dial attempts a direct connection to p at addr, adding it as a known
// route on success (spec §4.3 command: Dial).
func (r *Runner) Dial(ctx context.Context, p peer.ID, addr ma.Multiaddr) error {
	if err := r.checkReady(); err != nil {
		return err
	}
	res, err := submit(r, ctx, r.cfg.CommandDeadline, func(qctx context.Context) dialResult {
		r.host.Peerstore().AddAddr(p, addr, peerstore.PermanentAddrTTL)
		if connErr := r.host.Connect(qctx, peer.AddrInfo{ID: p, Addrs: []ma.Multiaddr{addr}}); connErr != nil {
			return dialResult{err: fmt.Errorf("%w: %v", errs.ErrDial, connErr)}
		}
		return dialResult{}
	})
	if err != nil {
		r.metrics.observe("dial", "cancelled")
		return err
	}
	if res.err != nil {
		r.metrics.observe("dial", "failed")
		return res.err
	}
	r.metrics.observe("dial", "ok")
	return nil
}

type publishResult struct {
	fp  fingerprint.Fingerprint
	err error
}

// Publish computes bytes' fingerprint, stores it locally, and
// announces a provider record (spec §4.3 command: Publish).
func (r *Runner) Publish(ctx context.Context, data []byte) (fingerprint.Fingerprint, error) {
	if err := r.checkReady(); err != nil {
		return fingerprint.Fingerprint{}, err
	}
	res, err := submit(r, ctx, r.cfg.CommandDeadline, func(qctx context.Context) publishResult {
		fp, putErr := r.store.Put(data, r.peerID, time.Now())
		if putErr != nil {
			return publishResult{err: putErr}
		}
		if provErr := r.dht.PutProvider(qctx, fp); provErr != nil {
			if len(r.host.Network().Peers()) == 0 {
				return publishResult{fp: fp, err: fmt.Errorf("%w: %v", errs.ErrNotConnected, provErr)}
			}
			return publishResult{fp: fp, err: provErr}
		}
		return publishResult{fp: fp}
	})
	if err != nil {
		r.metrics.observe("publish", "cancelled")
		return fingerprint.Fingerprint{}, err
	}
	if res.err != nil {
		r.metrics.observe("publish", "failed")
		return res.fp, res.err
	}
	r.metrics.observe("publish", "ok")
	return res.fp, nil
}

type providersResult struct {
	peers []peer.ID
	err   error
}

// GetProviders returns the union of locally-cached and network-returned
// providers for fp. An empty set is a valid, non-error answer (spec
// §4.3 command: GetProviders).
func (r *Runner) GetProviders(ctx context.Context, fp fingerprint.Fingerprint) ([]peer.ID, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	res, err := submit(r, ctx, r.cfg.CommandDeadline, func(qctx context.Context) providersResult {
		peers, provErr := r.dht.GetProviders(qctx, fp, r.cfg.FanOut)
		return providersResult{peers: peers, err: provErr}
	})
	if err != nil {
		r.metrics.observe("get_providers", "cancelled")
		return nil, err
	}
	if res.err != nil {
		r.metrics.observe("get_providers", "failed")
		return nil, res.err
	}
	r.metrics.observe("get_providers", "ok")
	return res.peers, nil
}

type downloadResult struct {
	bytes []byte
	err   error
}

// Download returns fp's bytes, fetching them from a provider over the
// Transfer Protocol if not already stored locally (spec §4.3 command:
// Download).
func (r *Runner) Download(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, error) {
	if err := r.checkReady(); err != nil {
		return nil, err
	}
	res, err := submit(r, ctx, r.cfg.OperationBudget, func(qctx context.Context) downloadResult {
		b, getErr := r.store.Get(fp)
		if getErr == nil {
			return downloadResult{bytes: b}
		}

		providers, provErr := r.dht.GetProviders(qctx, fp, r.cfg.FanOut)
		if provErr != nil {
			return downloadResult{err: provErr}
		}

		fanOut := r.cfg.FanOut
		if fanOut <= 0 {
			fanOut = 4
		}
		tried := 0
		for _, p := range providers {
			if tried >= fanOut {
				break
			}
			if p == r.peerID {
				continue
			}
			tried++

			fetchCtx, cancel := context.WithTimeout(qctx, r.cfg.FetchTimeout)
			reply, fetchErr := transfer.FetchObject(fetchCtx, r.host, p, fp, r.cfg.MaxMessageSize)
			cancel()
			if fetchErr != nil {
				log.Warnw("download: provider unreachable", "peer", p.String(), "fingerprint", fp.String(), "err", fetchErr)
				continue
			}
			if reply.Status != transfer.StatusOk {
				log.Debugw("download: provider answered non-ok", "peer", p.String(), "status", reply.Status.String())
				continue
			}

			got := fingerprint.Of(reply.Bytes)
			if got != fp {
				log.Warnw("download: integrity mismatch, treating provider as absent", "peer", p.String(), "fingerprint", fp.String())
				continue
			}

			if _, cacheErr := r.store.PutCached(reply.Bytes, p, time.Now()); cacheErr != nil {
				log.Warnw("download: failed to cache fetched object", "fingerprint", fp.String(), "err", cacheErr)
			}
			return downloadResult{bytes: reply.Bytes}
		}
		return downloadResult{err: errs.ErrFailed}
	})
	if err != nil {
		r.metrics.observe("download", "cancelled")
		return nil, err
	}
	if res.err != nil {
		r.metrics.observe("download", "failed")
		return nil, res.err
	}
	r.metrics.observe("download", "ok")
	return res.bytes, nil
}

type deleteResult struct {
	summary DeleteSummary
	err     error
}

// Delete decrements the local refcount (if this node holds and owns
// the object) then fans the owner-signed DeleteObject request out to
// every known remote provider (spec §4.3 command: Delete).
func (r *Runner) Delete(ctx context.Context, fp fingerprint.Fingerprint) (DeleteSummary, error) {
	if err := r.checkReady(); err != nil {
		return DeleteSummary{}, err
	}
	res, err := submit(r, ctx, r.cfg.OperationBudget, func(qctx context.Context) deleteResult {
		var summary DeleteSummary
		sig := r.keypair.Sign(fp[:])

		outcome, delErr := r.store.Delete(fp, r.peerID, sig)
		if delErr != nil {
			return deleteResult{err: delErr}
		}
		if outcome == objectstore.Deleted {
			summary.DeletedMyself = true
			r.dht.StopProviding(fp)
		}

		providers, provErr := r.dht.GetProviders(qctx, fp, r.cfg.FanOut)
		if provErr != nil {
			return deleteResult{summary: summary, err: provErr}
		}

		for _, p := range providers {
			if p == r.peerID {
				continue
			}
			delCtx, cancel := context.WithTimeout(qctx, r.cfg.FetchTimeout)
			reply, sendErr := transfer.SendDeleteObject(delCtx, r.host, p, fp, sig)
			cancel()
			if sendErr != nil {
				log.Warnw("delete: provider unreachable", "peer", p.String(), "fingerprint", fp.String(), "err", sendErr)
				summary.Failed++
				continue
			}
			if reply.Status == transfer.StatusOk {
				summary.Successful++
			} else {
				summary.Failed++
			}
		}
		return deleteResult{summary: summary}
	})
	if err != nil {
		r.metrics.observe("delete", "cancelled")
		return DeleteSummary{}, err
	}
	if res.err != nil {
		r.metrics.observe("delete", "failed")
		return res.summary, res.err
	}
	r.metrics.observe("delete", "ok")
	return res.summary, nil
}

// AddBootstrapPeer records addr as a known route to p for future
// dialing/bootstrap rounds, without dialing immediately.
func (r *Runner) AddBootstrapPeer(p peer.ID, addr ma.Multiaddr) {
	r.host.Peerstore().AddAddr(p, addr, peerstore.PermanentAddrTTL)
}

// RemoveBootstrapPeer forgets any recorded addresses for p.
func (r *Runner) RemoveBootstrapPeer(p peer.ID) {
	r.host.Peerstore().ClearAddrs(p)
}

// AddExternalAddr records an additional externally-reachable address
// for this node, returned from future ExternalAddrs() calls. The host's
// address factory is fixed at construction time, so Addrs() and the
// advertised address set do not include it until the next NewRunner.
func (r *Runner) AddExternalAddr(addr ma.Multiaddr) {
	r.mu.Lock()
	r.externalAddrs = append(r.externalAddrs, addr)
	r.mu.Unlock()
}

// ExternalAddrs returns the externally-reachable addresses recorded for
// this node.
func (r *Runner) ExternalAddrs() []ma.Multiaddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ma.Multiaddr, len(r.externalAddrs))
	copy(out, r.externalAddrs)
	return out
}

// Stop cancels every outstanding query with Cancelled, closes the
// listeners, and exits the event loop (spec §4.3 command: Stop). It is
// idempotent.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.state == StateStopped || r.state == StateStopping {
		r.mu.Unlock()
		return nil
	}
	r.state = StateStopping
	for qid, cancel := range r.pending {
		cancel()
		delete(r.pending, qid)
	}
	r.mu.Unlock()

	close(r.stopCh)
	select {
	case <-r.stoppedCh:
	case <-ctx.Done():
	}

	r.xfer.Stop()
	if err := r.dht.Close(); err != nil {
		log.Warnw("stop: dht close failed", "peer", r.peerID.String(), "err", err)
	}
	if err := r.host.Close(); err != nil {
		log.Warnw("stop: host close failed", "peer", r.peerID.String(), "err", err)
	}

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	log.Infow("swarm runner stopped", "peer", r.peerID.String())
	return nil
}
