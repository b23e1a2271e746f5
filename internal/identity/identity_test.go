package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSeedIsDeterministic(t *testing.T) {
	a := FromSeed(1)
	b := FromSeed(1)
	assert.Equal(t, a.Priv, b.Priv)
	assert.Equal(t, a.Pub, b.Pub)

	c := FromSeed(2)
	assert.NotEqual(t, a.Priv, c.Priv)
}

func TestPeerIDStableAcrossRestarts(t *testing.T) {
	first := FromSeed(42)
	id1, err := first.PeerID()
	require.NoError(t, err)

	second := FromSeed(42)
	id2, err := second.PeerID()
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	k := FromSeed(7)
	msg := []byte("fingerprint-bytes")
	sig := k.Sign(msg)

	assert.True(t, Verify(k.Pub, msg, sig))
	assert.False(t, Verify(k.Pub, []byte("different"), sig))

	other := FromSeed(8)
	assert.False(t, Verify(other.Pub, msg, sig))
}

func TestGenerateProducesUsableKey(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	assert.Nil(t, k.Seed)

	_, err = k.PeerID()
	require.NoError(t, err)
}
