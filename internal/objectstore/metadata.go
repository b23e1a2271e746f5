package objectstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// formatV1 is the on-disk sidecar format's version tag (spec §4.1: "on-
// disk format versioned with a one-byte tag so future encodings can
// coexist").
const formatV1 byte = 1

// metaRecord is what actually gets gob-encoded into the <fp>.meta
// sidecar file. peer.ID is stored as its string form so the encoding
// doesn't depend on libp2p's internal peer.ID representation.
type metaRecord struct {
	Owner       string
	PublishedAt time.Time
	RefCount    uint64
}

// metadata is the in-memory, typed view of a stored object's sidecar
// record (spec §3: "owner peer-ID, published timestamp, refcount").
type metadata struct {
	Owner       peer.ID
	PublishedAt time.Time
	RefCount    uint64
}

func encodeMetadata(m metadata) ([]byte, error) {
	rec := metaRecord{
		Owner:       m.Owner.String(),
		PublishedAt: m.PublishedAt,
		RefCount:    m.RefCount,
	}
	var buf bytes.Buffer
	buf.WriteByte(formatV1)
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeMetadata(raw []byte) (metadata, error) {
	if len(raw) < 1 {
		return metadata{}, fmt.Errorf("metadata: empty record")
	}
	version := raw[0]
	if version != formatV1 {
		return metadata{}, fmt.Errorf("metadata: unsupported format version %d", version)
	}

	var rec metaRecord
	if err := gob.NewDecoder(bytes.NewReader(raw[1:])).Decode(&rec); err != nil {
		return metadata{}, fmt.Errorf("decode metadata: %w", err)
	}

	owner, err := peer.Decode(rec.Owner)
	if err != nil {
		return metadata{}, fmt.Errorf("metadata: decode owner: %w", err)
	}

	return metadata{
		Owner:       owner,
		PublishedAt: rec.PublishedAt,
		RefCount:    rec.RefCount,
	}, nil
}
