package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liberum-neto/liberum-neto/internal/identity"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.BootstrapTimeout = 2 * time.Second
	cfg.FetchTimeout = 3 * time.Second
	cfg.OperationBudget = 10 * time.Second
	cfg.CommandDeadline = 10 * time.Second
	return cfg
}

func newTestRunner(t *testing.T, seed uint64) *Runner {
	t.Helper()
	store, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)

	kp := identity.FromSeed(seed)
	r, err := NewRunner(testConfig(), kp, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(ctx)
	})
	return r
}

func connectRunners(t *testing.T, ctx context.Context, a, b *Runner) {
	t.Helper()
	addrs := b.Addrs()
	require.NotEmpty(t, addrs)
	require.NoError(t, a.Dial(ctx, b.PeerID(), addrs[0]))
}

func TestRunnerStartsListening(t *testing.T) {
	r := newTestRunner(t, 1)
	assert.NotEmpty(t, r.Addrs())
	assert.NotEmpty(t, r.PeerID().String())
}

func TestPublishAndDownloadAcrossTwoRunners(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	a := newTestRunner(t, 10)
	b := newTestRunner(t, 11)

	connectRunners(t, ctx, a, b)
	connectRunners(t, ctx, b, a)

	a.Bootstrap(ctx)
	b.Bootstrap(ctx)

	data := []byte("published by a, fetched by b")
	fp, err := a.Publish(ctx, data)
	require.NoError(t, err)

	got, err := b.Download(ctx, fp)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestGetProvidersEmptySetIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := newTestRunner(t, 20)
	providers, err := a.GetProviders(ctx, [32]byte{})
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestDownloadFailsWhenNoProviderHasObject(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := newTestRunner(t, 30)
	b := newTestRunner(t, 31)
	connectRunners(t, ctx, a, b)
	connectRunners(t, ctx, b, a)

	_, err := b.Download(ctx, [32]byte{0xAB})
	assert.Error(t, err)
}

func TestDeleteByOwnerSucceedsAndOwnerCanNoLongerDownload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	owner := newTestRunner(t, 40)
	other := newTestRunner(t, 41)
	connectRunners(t, ctx, owner, other)
	connectRunners(t, ctx, other, owner)

	owner.Bootstrap(ctx)
	other.Bootstrap(ctx)

	data := []byte("owned-by-owner")
	fp, err := owner.Publish(ctx, data)
	require.NoError(t, err)

	_, err = other.Download(ctx, fp)
	require.NoError(t, err)

	summary, err := owner.Delete(ctx, fp)
	require.NoError(t, err)
	assert.True(t, summary.DeletedMyself)

	_, err = owner.Download(ctx, fp)
	assert.Error(t, err)
}

func TestDialUnreachableAddressFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a := newTestRunner(t, 50)
	b := newTestRunner(t, 51)
	// Stop b first so its address is no longer accepting connections.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	addr := b.Addrs()[0]
	peerID := b.PeerID()
	require.NoError(t, b.Stop(stopCtx))
	stopCancel()

	err := a.Dial(ctx, peerID, addr)
	assert.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := objectstore.Open(t.TempDir())
	require.NoError(t, err)
	kp := identity.FromSeed(60)
	r, err := NewRunner(testConfig(), kp, store, nil)
	require.NoError(t, err)

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
	assert.Equal(t, StateStopped, r.State())
}
