package swarm

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/transfer"
)

// storeBackend adapts *objectstore.Store to transfer.Backend, the
// narrow interface the Transfer Protocol server needs to answer
// incoming FetchObject/DeleteObject requests.
type storeBackend struct {
	store *objectstore.Store
}

func (b storeBackend) Fetch(fp fingerprint.Fingerprint) ([]byte, bool) {
	data, err := b.store.Get(fp)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (b storeBackend) Delete(fp fingerprint.Fingerprint, requester peer.ID, signature []byte) (transfer.Status, error) {
	outcome, err := b.store.Delete(fp, requester, signature)
	if err != nil {
		return transfer.StatusBusy, err
	}
	switch outcome {
	case objectstore.Deleted:
		return transfer.StatusOk, nil
	case objectstore.NotOwner:
		return transfer.StatusNotOwner, nil
	default:
		return transfer.StatusAbsent, nil
	}
}
