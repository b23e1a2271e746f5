package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/identity"
	"github.com/liberum-neto/liberum-neto/internal/nodestore"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/swarm"
)

func testConfig() swarm.Config {
	cfg := swarm.DefaultConfig()
	cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.BootstrapTimeout = 2 * time.Second
	cfg.FetchTimeout = 3 * time.Second
	cfg.OperationBudget = 10 * time.Second
	cfg.CommandDeadline = 10 * time.Second
	return cfg
}

func newTestActor(t *testing.T, name string, seed uint64) (*Actor, *nodestore.Store) {
	t.Helper()
	objects, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	manifests, err := nodestore.Open(t.TempDir())
	require.NoError(t, err)

	manifest := nodestore.Manifest{Name: name, Keypair: identity.FromSeed(seed)}
	require.NoError(t, manifests.Save(manifest))

	return New(manifest, manifests, objects, testConfig()), manifests
}

func TestActorStartsStopped(t *testing.T) {
	a, _ := newTestActor(t, "alice", 1)
	assert.False(t, a.IsRunning())
	assert.Equal(t, StateStopped, a.State())
}

func TestCommandOnStoppedActorIsNotRunning(t *testing.T) {
	a, _ := newTestActor(t, "bob", 2)
	_, err := a.Publish(context.Background(), []byte("data"))
	assert.ErrorIs(t, err, errs.ErrNotRunning)
}

func TestStartThenStopLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, _ := newTestActor(t, "carol", 3)
	require.NoError(t, a.Start(ctx))
	assert.True(t, a.IsRunning())

	peerID, err := a.GetPeerId()
	require.NoError(t, err)
	assert.NotEmpty(t, peerID.String())

	require.NoError(t, a.Stop(ctx))
	assert.False(t, a.IsRunning())
	assert.Equal(t, StateStopped, a.State())
}

func TestPublishAndDownloadBetweenTwoActors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	a, _ := newTestActor(t, "dave", 4)
	b, _ := newTestActor(t, "erin", 5)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	defer a.Stop(ctx)
	defer b.Stop(ctx)

	aPeer, err := a.GetPeerId()
	require.NoError(t, err)
	bPeer, err := b.GetPeerId()
	require.NoError(t, err)

	bAddrs, err := b.Addrs()
	require.NoError(t, err)
	require.NotEmpty(t, bAddrs)
	require.NoError(t, a.Dial(ctx, bPeer, bAddrs[0]))

	aAddrs, err := a.Addrs()
	require.NoError(t, err)
	require.NoError(t, b.Dial(ctx, aPeer, aAddrs[0]))

	data := []byte("actor-level publish/download")
	fp, err := a.Publish(ctx, data)
	require.NoError(t, err)

	got, err := b.Download(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetPeerIdDeterministicAcrossRestart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, store := newTestActor(t, "frank", 6)
	require.NoError(t, a.Start(ctx))
	id1, err := a.GetPeerId()
	require.NoError(t, err)
	require.NoError(t, a.Stop(ctx))

	manifest, err := store.Load("frank")
	require.NoError(t, err)
	b := New(manifest, store, nil, testConfig())
	id2, err := b.GetPeerId()
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
