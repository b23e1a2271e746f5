package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfAndVerify(t *testing.T) {
	b := []byte("Hello, World!\n")
	fp := Of(b)
	assert.True(t, Verify(fp, b))
	assert.False(t, Verify(fp, []byte("Hello, World!")))
}

func TestRoundTripEncoding(t *testing.T) {
	fp := Of([]byte("roundtrip me"))
	s := fp.String()

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-base58-!!!")
	assert.Error(t, err)

	// Valid base58 but wrong length.
	_, err = Parse("2NEpo7TZRRrLZSi2U")
	assert.Error(t, err)
}

func TestIdempotentFingerprint(t *testing.T) {
	b := []byte("same bytes twice")
	assert.Equal(t, Of(b), Of(b))
}
