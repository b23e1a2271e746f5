package dht

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
)

func newTestHost(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func connect(t *testing.T, ctx context.Context, a, b host.Host) {
	t.Helper()
	info := peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()}
	require.NoError(t, a.Connect(ctx, info))
}

func TestPutProviderThenGetProvidersAcrossTwoPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hostA := newTestHost(t)
	hostB := newTestHost(t)

	dhtA, err := New(ctx, hostA, time.Hour)
	require.NoError(t, err)
	defer dhtA.Close()

	dhtB, err := New(ctx, hostB, time.Hour)
	require.NoError(t, err)
	defer dhtB.Close()

	connect(t, ctx, hostA, hostB)
	connect(t, ctx, hostB, hostA)

	require.NoError(t, dhtA.Bootstrap(ctx))
	require.NoError(t, dhtB.Bootstrap(ctx))

	fp := fingerprint.Of([]byte("dht test object"))
	require.NoError(t, dhtA.PutProvider(ctx, fp))

	providers, err := dhtB.GetProviders(ctx, fp, 4)
	require.NoError(t, err)
	assert.Contains(t, providers, hostA.ID())
}

func TestGetProvidersEmptyIsNotAnError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := newTestHost(t)
	d, err := New(ctx, h, time.Hour)
	require.NoError(t, err)
	defer d.Close()

	fp := fingerprint.Of([]byte("nobody provides this"))
	providers, err := d.GetProviders(ctx, fp, 4)
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestStopProvidingCancelsReannounceLoop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := newTestHost(t)
	d, err := New(ctx, h, 50*time.Millisecond)
	require.NoError(t, err)
	defer d.Close()

	fp := fingerprint.Of([]byte("stoppable provider"))
	require.NoError(t, d.PutProvider(ctx, fp))

	d.mu.Lock()
	_, running := d.cancels[fp]
	d.mu.Unlock()
	assert.True(t, running)

	d.StopProviding(fp)

	d.mu.Lock()
	_, stillRunning := d.cancels[fp]
	d.mu.Unlock()
	assert.False(t, stillRunning)
}
