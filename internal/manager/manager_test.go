package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/nodestore"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/swarm"
)

func testConfig() swarm.Config {
	cfg := swarm.DefaultConfig()
	cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.BootstrapTimeout = 2 * time.Second
	return cfg
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	objects, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	manifests, err := nodestore.Open(t.TempDir())
	require.NoError(t, err)
	return New(manifests, objects, testConfig())
}

func TestNewNodeThenExistsFails(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.NewNode("alice", nil))

	err := m.NewNode("alice", nil)
	assert.ErrorIs(t, err, errs.ErrExists)
}

func TestNewNodeRejectsEmptyName(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.NewNode("", nil), errs.ErrBadName)
}

func TestStartStopUnknownNodeFails(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	assert.ErrorIs(t, m.Start(ctx, "nobody"), errs.ErrUnknownNode)
	assert.ErrorIs(t, m.Stop(ctx, "nobody"), errs.ErrUnknownNode)
}

func TestListNodesSortedByName(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.NewNode("zeta", nil))
	require.NoError(t, m.NewNode("alpha", nil))

	infos := m.ListNodes()
	require.Len(t, infos, 2)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[1].Name)
	assert.False(t, infos[0].IsRunning)
}

func TestStartStopLifecycleThroughManager(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m := newTestManager(t)
	require.NoError(t, m.NewNode("bob", nil))
	require.NoError(t, m.Start(ctx, "bob"))

	infos := m.ListNodes()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].IsRunning)

	require.NoError(t, m.Stop(ctx, "bob"))
	infos = m.ListNodes()
	assert.False(t, infos[0].IsRunning)
}

func TestCloseStopsRunningNodesInReverseOrder(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	m := newTestManager(t)
	require.NoError(t, m.NewNode("n1", nil))
	require.NoError(t, m.NewNode("n2", nil))
	require.NoError(t, m.Start(ctx, "n1"))
	require.NoError(t, m.Start(ctx, "n2"))

	require.NoError(t, m.Close(ctx))

	for _, info := range m.ListNodes() {
		assert.False(t, info.IsRunning)
	}
}

func TestLoadNodeRestoresPersistedManifest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	objects, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	manifestDir := t.TempDir()
	manifests, err := nodestore.Open(manifestDir)
	require.NoError(t, err)

	seed := uint64(77)
	m1 := New(manifests, objects, testConfig())
	require.NoError(t, m1.NewNode("carol", &seed))
	require.NoError(t, m1.Start(ctx, "carol"))
	actor, err := m1.Node("carol")
	require.NoError(t, err)
	id1, err := actor.GetPeerId()
	require.NoError(t, err)
	require.NoError(t, m1.Stop(ctx, "carol"))

	manifests2, err := nodestore.Open(manifestDir)
	require.NoError(t, err)
	m2 := New(manifests2, objects, testConfig())
	require.NoError(t, m2.LoadNode("carol"))
	actor2, err := m2.Node("carol")
	require.NoError(t, err)
	id2, err := actor2.GetPeerId()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
