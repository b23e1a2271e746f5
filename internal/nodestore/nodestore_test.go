package nodestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/identity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveLoadRoundTripWithSeed(t *testing.T) {
	s := openTestStore(t)
	kp := identity.FromSeed(99)
	peerID, err := kp.PeerID()
	require.NoError(t, err)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/udp/4001/quic-v1")
	require.NoError(t, err)

	m := Manifest{
		Name:              "alice",
		Keypair:           kp,
		Bootstrap:         []BootstrapPeer{{PeerID: peerID, Addr: addr}},
		ExternalAddrs:     []ma.Multiaddr{addr},
		OwnedFingerprints: []fingerprint.Fingerprint{fingerprint.Of([]byte("hello"))},
		CreatedAt:         time.Now().Truncate(time.Second),
	}
	require.NoError(t, s.Save(m))

	loaded, err := s.Load("alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", loaded.Name)
	assert.Equal(t, kp.Priv, loaded.Keypair.Priv)
	assert.Equal(t, kp.Pub, loaded.Keypair.Pub)
	require.NotNil(t, loaded.Keypair.Seed)
	assert.Equal(t, *kp.Seed, *loaded.Keypair.Seed)
	require.Len(t, loaded.Bootstrap, 1)
	assert.Equal(t, peerID, loaded.Bootstrap[0].PeerID)
	assert.Equal(t, addr.String(), loaded.Bootstrap[0].Addr.String())
	require.Len(t, loaded.ExternalAddrs, 1)
	assert.Equal(t, addr.String(), loaded.ExternalAddrs[0].String())
	require.Len(t, loaded.OwnedFingerprints, 1)
	assert.Equal(t, m.OwnedFingerprints[0], loaded.OwnedFingerprints[0])
	assert.True(t, m.CreatedAt.Equal(loaded.CreatedAt))
}

func TestSaveLoadWithoutSeed(t *testing.T) {
	s := openTestStore(t)
	kp, err := identity.Generate()
	require.NoError(t, err)

	require.NoError(t, s.Save(Manifest{Name: "bob", Keypair: kp}))

	loaded, err := s.Load("bob")
	require.NoError(t, err)
	assert.Nil(t, loaded.Keypair.Seed)
	assert.Equal(t, kp.Pub, loaded.Keypair.Pub)
}

func TestLoadUnknownNodeFails(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load("nobody")
	assert.Error(t, err)
}

func TestExistsAndNames(t *testing.T) {
	s := openTestStore(t)
	assert.False(t, s.Exists("carol"))

	kp, _ := identity.Generate()
	require.NoError(t, s.Save(Manifest{Name: "carol", Keypair: kp}))
	assert.True(t, s.Exists("carol"))

	names, err := s.Names()
	require.NoError(t, err)
	assert.Contains(t, names, "carol")
}

func TestDeleteRemovesManifest(t *testing.T) {
	s := openTestStore(t)
	kp, _ := identity.Generate()
	require.NoError(t, s.Save(Manifest{Name: "dave", Keypair: kp}))
	require.True(t, s.Exists("dave"))

	require.NoError(t, s.Delete("dave"))
	assert.False(t, s.Exists("dave"))
}

func TestSaveOverwritesSeedWithGenerated(t *testing.T) {
	s := openTestStore(t)
	seeded := identity.FromSeed(1)
	require.NoError(t, s.Save(Manifest{Name: "erin", Keypair: seeded}))

	fresh, err := identity.Generate()
	require.NoError(t, err)
	require.NoError(t, s.Save(Manifest{Name: "erin", Keypair: fresh}))

	loaded, err := s.Load("erin")
	require.NoError(t, err)
	assert.Nil(t, loaded.Keypair.Seed)
	assert.Equal(t, fresh.Pub, loaded.Keypair.Pub)
}
