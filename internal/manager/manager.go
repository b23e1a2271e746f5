// Package manager implements the Node Manager (spec §4.5): a
// process-wide directory mapping node name to Node Actor, the sole
// owner of the in-memory node set.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/identity"
	"github.com/liberum-neto/liberum-neto/internal/logging"
	"github.com/liberum-neto/liberum-neto/internal/node"
	"github.com/liberum-neto/liberum-neto/internal/nodestore"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/swarm"
)

var log = logging.Named(logging.Manager)

// NodeInfo is one list_nodes() entry (spec §4.5).
type NodeInfo struct {
	Name      string
	IsRunning bool
}

// Manager owns every node's Actor for this process.
type Manager struct {
	manifests *nodestore.Store
	objects   *objectstore.Store
	cfg       swarm.Config

	mu      sync.Mutex
	actors  map[string]*node.Actor
	created []string // creation order, for reverse-order teardown
}

// New constructs a Manager backed by manifests and objects, with cfg as
// the swarm configuration every started node uses.
func New(manifests *nodestore.Store, objects *objectstore.Store, cfg swarm.Config) *Manager {
	return &Manager{
		manifests: manifests,
		objects:   objects,
		cfg:       cfg,
		actors:    make(map[string]*node.Actor),
	}
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: node name must not be empty", errs.ErrBadName)
	}
	return nil
}

// NewNode creates and persists a fresh node manifest under name, using
// seed for a deterministic keypair if provided, or a freshly generated
// one otherwise (spec §4.5: "new_node(name, opt seed) → Ok | Exists").
func (m *Manager) NewNode(name string, seed *uint64) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.actors[name]; exists || m.manifests.Exists(name) {
		return fmt.Errorf("%w: node %q", errs.ErrExists, name)
	}

	var kp identity.Keypair
	if seed != nil {
		kp = identity.FromSeed(*seed)
	} else {
		var err error
		kp, err = identity.Generate()
		if err != nil {
			return fmt.Errorf("generate keypair for node %q: %w", name, err)
		}
	}

	manifest := nodestore.Manifest{Name: name, Keypair: kp}
	if err := m.manifests.Save(manifest); err != nil {
		return err
	}

	m.actors[name] = node.New(manifest, m.manifests, m.objects, m.cfg)
	m.created = append(m.created, name)
	log.Infow("node created", "name", name)
	return nil
}

// LoadNode deserializes a previously persisted manifest and registers
// its Actor, without starting it (spec §4.5: "load_node(name)").
func (m *Manager) LoadNode(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.actors[name]; exists {
		return fmt.Errorf("%w: node %q", errs.ErrExists, name)
	}

	manifest, err := m.manifests.Load(name)
	if err != nil {
		return err
	}

	m.actors[name] = node.New(manifest, m.manifests, m.objects, m.cfg)
	m.created = append(m.created, name)
	log.Infow("node loaded", "name", name)
	return nil
}

func (m *Manager) lookup(name string) (*node.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	actor, ok := m.actors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownNode, name)
	}
	return actor, nil
}

// Start starts a registered node by name (spec §4.5: "start(name)").
func (m *Manager) Start(ctx context.Context, name string) error {
	actor, err := m.lookup(name)
	if err != nil {
		return err
	}
	return actor.Start(ctx)
}

// Stop stops a registered node by name (spec §4.5: "stop(name)").
func (m *Manager) Stop(ctx context.Context, name string) error {
	actor, err := m.lookup(name)
	if err != nil {
		return err
	}
	return actor.Stop(ctx)
}

// ListNodes lists every registered node and whether it's running,
// sorted by name for deterministic CLI output (spec §4.5, SPEC_FULL
// addition).
func (m *Manager) ListNodes() []NodeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]NodeInfo, 0, len(m.actors))
	for name, actor := range m.actors {
		out = append(out, NodeInfo{Name: name, IsRunning: actor.IsRunning()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Node returns the Actor registered under name, for callers (the
// Control API) that need more than the operations forwarded below.
func (m *Manager) Node(name string) (*node.Actor, error) {
	return m.lookup(name)
}

// Close stops every running node in reverse creation order (spec §4.5:
// "teardown stops every running node in reverse creation order").
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	order := append([]string(nil), m.created...)
	m.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		actor, err := m.lookup(order[i])
		if err != nil {
			continue
		}
		if !actor.IsRunning() {
			continue
		}
		if err := actor.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
