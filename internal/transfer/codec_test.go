package transfer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
)

func TestFetchRequestRoundTrip(t *testing.T) {
	req := FetchRequest{Fingerprint: fingerprint.Of([]byte("payload"))}

	var buf bytes.Buffer
	require.NoError(t, EncodeFetchRequest(&buf, req))

	tag, err := ReadTag(&buf)
	require.NoError(t, err)
	assert.Equal(t, tagFetch, tag)

	got, err := DecodeFetchRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestFetchReplyRoundTripOk(t *testing.T) {
	reply := FetchReply{Status: StatusOk, Bytes: []byte("object bytes")}

	var buf bytes.Buffer
	require.NoError(t, EncodeFetchReply(&buf, reply))
	_, err := ReadTag(&buf)
	require.NoError(t, err)

	got, err := DecodeFetchReply(&buf, DefaultMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestFetchReplyRoundTripAbsentHasNoBody(t *testing.T) {
	reply := FetchReply{Status: StatusAbsent}

	var buf bytes.Buffer
	require.NoError(t, EncodeFetchReply(&buf, reply))
	_, err := ReadTag(&buf)
	require.NoError(t, err)

	got, err := DecodeFetchReply(&buf, DefaultMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, StatusAbsent, got.Status)
	assert.Empty(t, got.Bytes)
	assert.Zero(t, buf.Len())
}

func TestFetchReplyRejectsOversizedBody(t *testing.T) {
	reply := FetchReply{Status: StatusOk, Bytes: make([]byte, 100)}
	var buf bytes.Buffer
	require.NoError(t, EncodeFetchReply(&buf, reply))
	_, err := ReadTag(&buf)
	require.NoError(t, err)

	_, err = DecodeFetchReply(&buf, 10)
	assert.Error(t, err)
}

func TestFetchReplyRejectsInvalidStatus(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(tagFetch)
	buf.WriteByte(0xFF)

	_, err := ReadTag(&buf)
	require.NoError(t, err)
	_, err = DecodeFetchReply(&buf, DefaultMaxMessageSize)
	assert.Error(t, err)
}

func TestDeleteRequestRoundTrip(t *testing.T) {
	req := DeleteRequest{
		Fingerprint: fingerprint.Of([]byte("deletable")),
		Signature:   []byte("a-signature-of-arbitrary-length"),
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeDeleteRequest(&buf, req))
	_, err := ReadTag(&buf)
	require.NoError(t, err)

	got, err := DecodeDeleteRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestDeleteReplyRoundTrip(t *testing.T) {
	reply := DeleteReply{Status: StatusOk, SuccessCount: 3}

	var buf bytes.Buffer
	require.NoError(t, EncodeDeleteReply(&buf, reply))
	_, err := ReadTag(&buf)
	require.NoError(t, err)

	got, err := DecodeDeleteReply(&buf)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusOk.Valid())
	assert.True(t, StatusBusy.Valid())
	assert.False(t, Status(4).Valid())
}
