package transfer

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

type fakeBackend struct {
	objects map[fingerprint.Fingerprint][]byte
	deletes map[fingerprint.Fingerprint]Status
}

func (b *fakeBackend) Fetch(fp fingerprint.Fingerprint) ([]byte, bool) {
	data, ok := b.objects[fp]
	return data, ok
}

func (b *fakeBackend) Delete(fp fingerprint.Fingerprint, requester peer.ID, signature []byte) (Status, error) {
	if status, ok := b.deletes[fp]; ok {
		return status, nil
	}
	return StatusAbsent, nil
}

func newConnectedHostPair(t *testing.T) (host.Host, host.Host) {
	t.Helper()
	ctx := context.Background()

	a, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := libp2p.New(libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, a.Connect(ctx, peer.AddrInfo{ID: b.ID(), Addrs: b.Addrs()}))
	return a, b
}

func TestFetchObjectFound(t *testing.T) {
	client, server := newConnectedHostPair(t)

	data := []byte("served bytes")
	fp := fingerprint.Of(data)
	backend := &fakeBackend{objects: map[fingerprint.Fingerprint][]byte{fp: data}}

	svc := NewService(server, backend, 0)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := FetchObject(ctx, client, server.ID(), fp, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusOk, reply.Status)
	assert.Equal(t, data, reply.Bytes)
}

func TestFetchObjectAbsent(t *testing.T) {
	client, server := newConnectedHostPair(t)

	backend := &fakeBackend{objects: map[fingerprint.Fingerprint][]byte{}}
	svc := NewService(server, backend, 0)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var fp fingerprint.Fingerprint
	reply, err := FetchObject(ctx, client, server.ID(), fp, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, reply.Status)
}

func TestSendDeleteObjectNotOwner(t *testing.T) {
	client, server := newConnectedHostPair(t)

	fp := fingerprint.Of([]byte("contested"))
	backend := &fakeBackend{deletes: map[fingerprint.Fingerprint]Status{fp: StatusNotOwner}}
	svc := NewService(server, backend, 0)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := SendDeleteObject(ctx, client, server.ID(), fp, []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, StatusNotOwner, reply.Status)
	assert.Zero(t, reply.SuccessCount)
}

func TestSendDeleteObjectOk(t *testing.T) {
	client, server := newConnectedHostPair(t)

	fp := fingerprint.Of([]byte("deletable"))
	backend := &fakeBackend{deletes: map[fingerprint.Fingerprint]Status{fp: StatusOk}}
	svc := NewService(server, backend, 0)
	svc.Start()
	defer svc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := SendDeleteObject(ctx, client, server.ID(), fp, []byte("sig"))
	require.NoError(t, err)
	assert.Equal(t, StatusOk, reply.Status)
	assert.Equal(t, uint32(1), reply.SuccessCount)
}
