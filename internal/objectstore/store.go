// Package objectstore implements the content-addressed blob store shared
// by every node in one daemon (spec §4.1). One Store instance serves the
// whole process: objects live under $dataDir/objects, one file per
// fingerprint plus a ".meta" sidecar carrying owner, published timestamp,
// and refcount.
//
// Mutations are serialized under a single writer mutex; readers proceed
// concurrently. Every write to disk uses the teacher's
// write-to-temp/fsync/rename discipline so a crash mid-write never
// corrupts an existing blob or sidecar.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/logging"
)

var log = logging.Named(logging.ObjectStore)

// Store is the on-disk, content-addressed object store. Safe for
// concurrent use: one writer at a time, many concurrent readers.
type Store struct {
	mu  sync.RWMutex
	dir string

	blobsTotal prometheus.Gauge
	bytesTotal prometheus.Gauge
}

// Open creates dir if needed and returns a Store that keeps its blobs
// and sidecars directly in it. dir is typically
// $HOME/.liberum-neto/objects (spec §6).
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create object store dir: %v", errs.ErrIO, err)
	}
	s := &Store{
		dir: dir,
		blobsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "objectstore_blobs_total",
			Help: "Number of distinct objects currently stored.",
		}),
		bytesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "objectstore_bytes_total",
			Help: "Total bytes of object blobs currently stored on disk.",
		}),
	}
	if n, err := s.countExisting(); err == nil {
		s.blobsTotal.Set(float64(n))
	}
	if fps, err := s.ListLocal(); err == nil {
		var total int64
		for fp := range fps {
			if info, statErr := os.Stat(s.blobPath(fp)); statErr == nil {
				total += info.Size()
			}
		}
		s.bytesTotal.Set(float64(total))
	}
	return s, nil
}

// Collectors exposes this store's prometheus gauges for registration by
// the daemon's metrics endpoint.
func (s *Store) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.blobsTotal, s.bytesTotal}
}

func (s *Store) blobPath(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.dir, fp.String())
}

func (s *Store) metaPath(fp fingerprint.Fingerprint) string {
	return filepath.Join(s.dir, fp.String()+".meta")
}

// Put stores bytes under their fingerprint, owned by owner as of ts. If
// the object is already present, this is idempotent: it increments the
// refcount and returns the existing fingerprint (spec §4.1 I-1). It
// fails with an IntegrityError if the existing record disagrees about
// who owns the object.
func (s *Store) Put(b []byte, owner peer.ID, ts time.Time) (fingerprint.Fingerprint, error) {
	fp := fingerprint.Of(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readMeta(fp)
	switch {
	case err == nil:
		if existing.Owner != owner {
			return fingerprint.Fingerprint{}, fmt.Errorf("%w: fingerprint %s already owned by %s", errs.ErrIntegrityErr, fp, existing.Owner)
		}
		existing.RefCount++
		if writeErr := s.writeMeta(fp, existing); writeErr != nil {
			return fingerprint.Fingerprint{}, writeErr
		}
		log.Debugw("put: refcount incremented", "fingerprint", fp.String(), "refcount", existing.RefCount)
		return fp, nil

	case os.IsNotExist(err) || err == errNotFound:
		if writeErr := s.writeBlob(fp, b); writeErr != nil {
			return fingerprint.Fingerprint{}, writeErr
		}
		meta := metadata{Owner: owner, PublishedAt: ts, RefCount: 1}
		if writeErr := s.writeMeta(fp, meta); writeErr != nil {
			return fingerprint.Fingerprint{}, writeErr
		}
		s.blobsTotal.Inc()
		s.bytesTotal.Add(float64(len(b)))
		log.Infow("put: new object stored", "fingerprint", fp.String(), "owner", owner.String(), "bytes", len(b))
		return fp, nil

	default:
		return fingerprint.Fingerprint{}, fmt.Errorf("%w: read metadata: %v", errs.ErrIO, err)
	}
}

// PutCached stores bytes as a zero-refcount cache copy, used by Download
// to retain a fetched object without the node being its publisher (spec
// §4.3: "cache in the Object Store (with refcount 0 — cached copy)").
// Unlike Put, PutCached never bumps an existing record's refcount.
func (s *Store) PutCached(b []byte, owner peer.ID, ts time.Time) (fingerprint.Fingerprint, error) {
	fp := fingerprint.Of(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(fp); err == nil {
		return fp, nil // already present in some form; leave refcount untouched
	}

	if err := s.writeBlob(fp, b); err != nil {
		return fingerprint.Fingerprint{}, err
	}
	meta := metadata{Owner: owner, PublishedAt: ts, RefCount: 0}
	if err := s.writeMeta(fp, meta); err != nil {
		return fingerprint.Fingerprint{}, err
	}
	s.blobsTotal.Inc()
	s.bytesTotal.Add(float64(len(b)))
	log.Debugw("put-cached: cache copy stored", "fingerprint", fp.String())
	return fp, nil
}

// Get returns the bytes for fp, or ErrAbsent if not stored locally.
func (s *Store) Get(fp fingerprint.Fingerprint) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := os.ReadFile(s.blobPath(fp))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", errs.ErrAbsent, fp)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read blob %s: %v", errs.ErrIO, fp, err)
	}
	return b, nil
}

// Has reports whether fp is stored locally, without reading the blob.
func (s *Store) Has(fp fingerprint.Fingerprint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.blobPath(fp))
	return err == nil
}

// Owner returns the recorded owner of a locally-stored object.
func (s *Store) Owner(fp fingerprint.Fingerprint) (peer.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, err := s.readMeta(fp)
	if err != nil {
		return "", fmt.Errorf("%w: %s", errs.ErrAbsent, fp)
	}
	return m.Owner, nil
}

// ListLocal returns every fingerprint stored locally.
func (s *Store) ListLocal() (map[fingerprint.Fingerprint]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list objects dir: %v", errs.ErrIO, err)
	}

	out := make(map[fingerprint.Fingerprint]struct{})
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".meta" || filepath.Ext(name) == ".tmp" {
			continue
		}
		fp, err := fingerprint.Parse(name)
		if err != nil {
			continue // not one of our blob files
		}
		out[fp] = struct{}{}
	}
	return out, nil
}

// DeleteOutcome enumerates Delete's three possible results (spec §4.1).
type DeleteOutcome int

const (
	Deleted DeleteOutcome = iota
	NotOwner
	NotFoundOutcome
)

// Delete verifies signature is sign(requester_priv, fingerprint) against
// the recorded owner, and on success decrements the refcount — removing
// both blob and metadata once it reaches zero (spec §4.1). The owner's
// public key is recovered from the peer ID itself: Ed25519 peer IDs
// embed their public key (libp2p's "identity" multihash), so no
// separate key registry is needed.
func (s *Store) Delete(fp fingerprint.Fingerprint, requester peer.ID, signature []byte) (DeleteOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.readMeta(fp)
	if err != nil {
		return NotFoundOutcome, nil
	}

	if m.Owner != requester {
		return NotOwner, nil
	}
	pub, err := m.Owner.ExtractPublicKey()
	if err != nil {
		return NotOwner, nil
	}
	ok, err := pub.Verify(fp[:], signature)
	if err != nil || !ok {
		return NotOwner, nil
	}

	if m.RefCount > 0 {
		m.RefCount--
	}
	if m.RefCount == 0 {
		if info, statErr := os.Stat(s.blobPath(fp)); statErr == nil {
			s.bytesTotal.Sub(float64(info.Size()))
		}
		if err := os.Remove(s.blobPath(fp)); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: remove blob: %v", errs.ErrIO, err)
		}
		if err := os.Remove(s.metaPath(fp)); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: remove metadata: %v", errs.ErrIO, err)
		}
		s.blobsTotal.Dec()
		log.Infow("delete: object removed", "fingerprint", fp.String())
		return Deleted, nil
	}

	if err := s.writeMeta(fp, m); err != nil {
		return 0, err
	}
	log.Debugw("delete: refcount decremented", "fingerprint", fp.String(), "refcount", m.RefCount)
	return Deleted, nil
}

// ─── internal helpers ──────────────────────────────────────────────────

var errNotFound = fmt.Errorf("objectstore: not found")

func (s *Store) readMeta(fp fingerprint.Fingerprint) (metadata, error) {
	raw, err := os.ReadFile(s.metaPath(fp))
	if os.IsNotExist(err) {
		return metadata{}, errNotFound
	}
	if err != nil {
		return metadata{}, err
	}
	return decodeMetadata(raw)
}

func (s *Store) writeMeta(fp fingerprint.Fingerprint, m metadata) error {
	raw, err := encodeMetadata(m)
	if err != nil {
		return err
	}
	return atomicWrite(s.metaPath(fp), raw)
}

func (s *Store) writeBlob(fp fingerprint.Fingerprint, b []byte) error {
	return atomicWrite(s.blobPath(fp), b)
}

// atomicWrite writes data to path via a temp file, fsync, then rename —
// the same discipline the teacher's WAL/snapshot code uses so a crash
// never leaves a half-written file in place of a valid one.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", errs.ErrIO, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write temp file: %v", errs.ErrIO, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: fsync temp file: %v", errs.ErrIO, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", errs.ErrIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: rename into place: %v", errs.ErrIO, err)
	}
	return nil
}

func (s *Store) countExisting() (int, error) {
	fps, err := s.ListLocal()
	if err != nil {
		return 0, err
	}
	return len(fps), nil
}
