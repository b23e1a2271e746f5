// Package node implements the Node Actor (spec §4.4): a thin mailbox
// layer over one swarm.Runner. It is the only gateway through which the
// rest of the daemon touches a node's swarm — the Node Manager holds one
// Actor per name and forwards every client command to it.
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/logging"
	"github.com/liberum-neto/liberum-neto/internal/nodestore"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/swarm"
)

var log = logging.Named(logging.Node)

// State is the Node Actor's lifecycle state (spec §4.4: "Stopped →
// Starting → Running → Stopping → Stopped").
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// Actor is one node's mailbox: every swarm command arrives as a closure
// on its cmdCh and is processed to completion, in order, by a single
// goroutine, before the next is dequeued.
type Actor struct {
	name        string
	cfg         swarm.Config
	manifestDir *nodestore.Store
	objects     *objectstore.Store

	mu       sync.Mutex
	state    State
	manifest nodestore.Manifest
	runner   *swarm.Runner

	cmdCh     chan func()
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// New constructs a Stopped Actor for an already-loaded manifest. Start
// must be called before any swarm command other than GetPeerId will
// succeed.
func New(manifest nodestore.Manifest, manifestDir *nodestore.Store, objects *objectstore.Store, cfg swarm.Config) *Actor {
	return &Actor{
		name:        manifest.Name,
		cfg:         cfg,
		manifestDir: manifestDir,
		objects:     objects,
		manifest:    manifest,
		state:       StateStopped,
	}
}

// Name returns the node's name.
func (a *Actor) Name() string { return a.name }

// IsRunning reports whether the actor is in state Running.
func (a *Actor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateRunning
}

// State returns the actor's current lifecycle state.
func (a *Actor) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// GetPeerId returns this node's peer ID. It works regardless of running
// state since the ID is a deterministic function of the manifest's
// keypair (spec §4.2), not of the live swarm.
func (a *Actor) GetPeerId() (peer.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner != nil {
		return a.runner.PeerID(), nil
	}
	return a.manifest.Keypair.PeerID()
}

// Start brings the node from Stopped to Running: constructs its
// swarm.Runner, dials in every configured bootstrap peer, runs one
// bootstrap round, and starts the actor's own mailbox loop (spec §4.4).
func (a *Actor) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateStopped {
		a.mu.Unlock()
		return fmt.Errorf("%w: node %q already running", errs.ErrAlreadyRunning, a.name)
	}
	a.state = StateStarting
	manifest := a.manifest
	a.mu.Unlock()

	runner, err := swarm.NewRunner(a.cfg, manifest.Keypair, a.objects, manifest.ExternalAddrs)
	if err != nil {
		a.mu.Lock()
		a.state = StateStopped
		a.mu.Unlock()
		return err
	}

	for _, bp := range manifest.Bootstrap {
		runner.AddBootstrapPeer(bp.PeerID, bp.Addr)
		if err := runner.Dial(ctx, bp.PeerID, bp.Addr); err != nil {
			log.Warnw("start: bootstrap peer dial failed", "name", a.name, "peer", bp.PeerID.String(), "err", err)
		}
	}
	runner.Bootstrap(ctx)

	a.mu.Lock()
	a.runner = runner
	a.cmdCh = make(chan func(), 16)
	a.stopCh = make(chan struct{})
	a.stoppedCh = make(chan struct{})
	a.state = StateRunning
	a.mu.Unlock()

	go a.mailbox()
	log.Infow("node started", "name", a.name, "peer", runner.PeerID().String())
	return nil
}

func (a *Actor) mailbox() {
	defer close(a.stoppedCh)
	for {
		select {
		case <-a.stopCh:
			return
		case fn := <-a.cmdCh:
			fn()
		}
	}
}

// submit runs fn on the actor's mailbox goroutine if the actor is
// Running, returning its result. It returns NotRunning synchronously —
// without a mailbox round-trip — when the actor isn't Running (spec
// §4.4).
func submit[T any](a *Actor, fn func(*swarm.Runner) T) (T, error) {
	var zero T
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return zero, fmt.Errorf("%w: node %q", errs.ErrNotRunning, a.name)
	}
	cmdCh := a.cmdCh
	runner := a.runner
	a.mu.Unlock()

	resultCh := make(chan T, 1)
	cmdCh <- func() { resultCh <- fn(runner) }
	return <-resultCh, nil
}

// Addrs returns the running node's current listen addresses.
func (a *Actor) Addrs() ([]ma.Multiaddr, error) {
	return submit(a, func(r *swarm.Runner) []ma.Multiaddr { return r.Addrs() })
}

// Dial mirrors swarm.Runner.Dial.
func (a *Actor) Dial(ctx context.Context, p peer.ID, addr ma.Multiaddr) error {
	res, err := submit(a, func(r *swarm.Runner) error { return r.Dial(ctx, p, addr) })
	if err != nil {
		return err
	}
	return res
}

// Publish mirrors swarm.Runner.Publish.
func (a *Actor) Publish(ctx context.Context, data []byte) (fingerprint.Fingerprint, error) {
	type result struct {
		fp  fingerprint.Fingerprint
		err error
	}
	res, err := submit(a, func(r *swarm.Runner) result {
		fp, pubErr := r.Publish(ctx, data)
		return result{fp: fp, err: pubErr}
	})
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	return res.fp, res.err
}

// GetProviders mirrors swarm.Runner.GetProviders.
func (a *Actor) GetProviders(ctx context.Context, fp fingerprint.Fingerprint) ([]peer.ID, error) {
	type result struct {
		peers []peer.ID
		err   error
	}
	res, err := submit(a, func(r *swarm.Runner) result {
		peers, getErr := r.GetProviders(ctx, fp)
		return result{peers: peers, err: getErr}
	})
	if err != nil {
		return nil, err
	}
	return res.peers, res.err
}

// ListProviders is an alias for GetProviders exposed under the name
// spec §4.4 gives the Node Actor's read-only provider query.
func (a *Actor) ListProviders(ctx context.Context, fp fingerprint.Fingerprint) ([]peer.ID, error) {
	return a.GetProviders(ctx, fp)
}

// Download mirrors swarm.Runner.Download.
func (a *Actor) Download(ctx context.Context, fp fingerprint.Fingerprint) ([]byte, error) {
	type result struct {
		bytes []byte
		err   error
	}
	res, err := submit(a, func(r *swarm.Runner) result {
		b, dlErr := r.Download(ctx, fp)
		return result{bytes: b, err: dlErr}
	})
	if err != nil {
		return nil, err
	}
	return res.bytes, res.err
}

// Delete mirrors swarm.Runner.Delete.
func (a *Actor) Delete(ctx context.Context, fp fingerprint.Fingerprint) (swarm.DeleteSummary, error) {
	type result struct {
		summary swarm.DeleteSummary
		err     error
	}
	res, err := submit(a, func(r *swarm.Runner) result {
		summary, delErr := r.Delete(ctx, fp)
		return result{summary: summary, err: delErr}
	})
	if err != nil {
		return swarm.DeleteSummary{}, err
	}
	return res.summary, res.err
}

// AddBootstrap records a bootstrap peer in the manifest and, if the
// node is running, connects it to the live swarm's peerstore too.
func (a *Actor) AddBootstrap(p peer.ID, addr ma.Multiaddr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manifest.Bootstrap = append(a.manifest.Bootstrap, nodestore.BootstrapPeer{PeerID: p, Addr: addr})
	if a.runner != nil {
		a.runner.AddBootstrapPeer(p, addr)
	}
	return a.manifestDir.Save(a.manifest)
}

// RemoveBootstrap forgets a previously configured bootstrap peer.
func (a *Actor) RemoveBootstrap(p peer.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.manifest.Bootstrap[:0]
	for _, bp := range a.manifest.Bootstrap {
		if bp.PeerID != p {
			kept = append(kept, bp)
		}
	}
	a.manifest.Bootstrap = kept
	if a.runner != nil {
		a.runner.RemoveBootstrapPeer(p)
	}
	return a.manifestDir.Save(a.manifest)
}

// AddExternalAddress records an additional externally-reachable address
// for this node. It takes effect on the live swarm immediately for
// bookkeeping purposes, and on the next Start for the libp2p host's
// advertised address set.
func (a *Actor) AddExternalAddress(addr ma.Multiaddr) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manifest.ExternalAddrs = append(a.manifest.ExternalAddrs, addr)
	if a.runner != nil {
		a.runner.AddExternalAddr(addr)
	}
	return a.manifestDir.Save(a.manifest)
}

// Collectors exposes the live runner's prometheus metrics, or nil when
// stopped.
func (a *Actor) Collectors() []prometheus.Collector {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runner == nil {
		return nil
	}
	return a.runner.Collectors()
}

// Stop brings the node from Running to Stopped: cancels outstanding
// queries, closes listeners, persists the manifest, and exits the
// mailbox loop (spec §4.4). Idempotent.
func (a *Actor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return nil
	}
	a.state = StateStopping
	runner := a.runner
	stopCh := a.stopCh
	stoppedCh := a.stoppedCh
	a.mu.Unlock()

	close(stopCh)
	select {
	case <-stoppedCh:
	case <-ctx.Done():
	}

	if err := runner.Stop(ctx); err != nil {
		log.Warnw("stop: runner stop failed", "name", a.name, "err", err)
	}

	a.mu.Lock()
	a.runner = nil
	a.state = StateStopped
	manifest := a.manifest
	a.mu.Unlock()

	if err := a.manifestDir.Save(manifest); err != nil {
		log.Warnw("stop: failed to persist manifest", "name", a.name, "err", err)
		return err
	}
	log.Infow("node stopped", "name", a.name)
	return nil
}
