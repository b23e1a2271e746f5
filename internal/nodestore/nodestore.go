// Package nodestore persists and loads node manifests: the long-term
// keypair, optional seed, bootstrap peer list, external addresses, and
// owned-fingerprint history a Node Manager needs to recreate a Node
// Actor across daemon restarts (spec §3 "Node manifest", §4.6).
//
// Each node gets a directory $dataDir/nodes/<name>/ containing up to
// three files: config, keypair, and (optionally) seed. All three start
// with a one-byte format-version tag; config follows it with a
// gob-encoded payload, keypair with the raw 64-byte Ed25519 private key,
// and seed with the big-endian uint64 seed. All three are written with the write-to-temp/fsync/rename discipline used throughout
// this codebase (internal/objectstore, and before that the teacher's
// internal/store/wal.go and snapshot.go).
package nodestore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/identity"
	"github.com/liberum-neto/liberum-neto/internal/logging"
)

var log = logging.Named(logging.NodeStore)

const formatV1 byte = 1

// BootstrapPeer is a preconfigured (peer-ID, multiaddress) pair used by a
// starting node to enter the DHT (spec GLOSSARY).
type BootstrapPeer struct {
	PeerID peer.ID
	Addr   ma.Multiaddr
}

// Manifest is the persistent, at-rest description of one named node
// (spec §3 "Node manifest"). A manifest is always at rest when the node
// is stopped; while running, additional transient state lives in the
// Swarm Runner, not here.
type Manifest struct {
	Name              string
	Keypair           identity.Keypair
	Bootstrap         []BootstrapPeer
	ExternalAddrs     []ma.Multiaddr
	OwnedFingerprints []fingerprint.Fingerprint
	CreatedAt         time.Time
}

// Store is a directory of node manifests rooted at $dataDir/nodes.
type Store struct {
	root string
}

// Open returns a Store rooted at dataDir/nodes, creating it if absent.
func Open(dataDir string) (*Store, error) {
	root := filepath.Join(dataDir, "nodes")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create nodes dir: %v", errs.ErrIO, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) dir(name string) string { return filepath.Join(s.root, name) }

// Exists reports whether a manifest directory already exists for name.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.dir(name))
	return err == nil
}

// Names lists every node name currently persisted, sorted by name.
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list nodes dir: %v", errs.ErrIO, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Save persists m to disk, creating or overwriting its directory.
func (s *Store) Save(m Manifest) error {
	dir := s.dir(m.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create node dir: %v", errs.ErrIO, err)
	}

	if err := writeConfig(dir, m); err != nil {
		return err
	}
	if err := writeKeypair(dir, m.Keypair); err != nil {
		return err
	}
	if m.Keypair.Seed != nil {
		if err := writeSeed(dir, *m.Keypair.Seed); err != nil {
			return err
		}
	} else {
		_ = os.Remove(filepath.Join(dir, "seed"))
	}

	log.Infow("manifest saved", "node", m.Name)
	return nil
}

// Load reads the manifest for name from disk.
func (s *Store) Load(name string) (Manifest, error) {
	dir := s.dir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return Manifest{}, fmt.Errorf("%w: %s", errs.ErrUnknownNode, name)
	}

	m, err := readConfig(dir)
	if err != nil {
		return Manifest{}, err
	}
	m.Name = name

	kp, err := readKeypair(dir)
	if err != nil {
		return Manifest{}, err
	}
	m.Keypair = kp

	if seed, ok, err := readSeed(dir); err != nil {
		return Manifest{}, err
	} else if ok {
		m.Keypair.Seed = &seed
	}

	return m, nil
}

// Delete removes a node's manifest directory entirely (destroys the
// node per spec §3).
func (s *Store) Delete(name string) error {
	if err := os.RemoveAll(s.dir(name)); err != nil {
		return fmt.Errorf("%w: remove node dir: %v", errs.ErrIO, err)
	}
	log.Infow("manifest deleted", "node", name)
	return nil
}

// ─── config file ───────────────────────────────────────────────────────

type bootstrapRecord struct {
	PeerID string
	Addr   string
}

type configRecord struct {
	Bootstrap         []bootstrapRecord
	ExternalAddrs     []string
	OwnedFingerprints []string
	CreatedAt         time.Time
}

func writeConfig(dir string, m Manifest) error {
	rec := configRecord{CreatedAt: m.CreatedAt}
	for _, bp := range m.Bootstrap {
		rec.Bootstrap = append(rec.Bootstrap, bootstrapRecord{PeerID: bp.PeerID.String(), Addr: bp.Addr.String()})
	}
	for _, a := range m.ExternalAddrs {
		rec.ExternalAddrs = append(rec.ExternalAddrs, a.String())
	}
	for _, fp := range m.OwnedFingerprints {
		rec.OwnedFingerprints = append(rec.OwnedFingerprints, fp.String())
	}

	var buf bytes.Buffer
	buf.WriteByte(formatV1)
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicWrite(filepath.Join(dir, "config"), buf.Bytes())
}

func readConfig(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "config"))
	if err != nil {
		// Missing config is tolerated per spec §4.6 ("reads tolerate
		// missing optional fields by defaulting") — a freshly created
		// node may not have persisted one yet.
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return Manifest{}, fmt.Errorf("%w: read config: %v", errs.ErrIO, err)
	}
	if len(raw) < 1 || raw[0] != formatV1 {
		return Manifest{}, fmt.Errorf("%w: config: unsupported format version", errs.ErrCorrupted)
	}

	var rec configRecord
	if err := gob.NewDecoder(bytes.NewReader(raw[1:])).Decode(&rec); err != nil {
		return Manifest{}, fmt.Errorf("%w: decode config: %v", errs.ErrCorrupted, err)
	}

	m := Manifest{CreatedAt: rec.CreatedAt}
	for _, bp := range rec.Bootstrap {
		pid, err := peer.Decode(bp.PeerID)
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: bootstrap peer id: %v", errs.ErrCorrupted, err)
		}
		addr, err := ma.NewMultiaddr(bp.Addr)
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: bootstrap addr: %v", errs.ErrCorrupted, err)
		}
		m.Bootstrap = append(m.Bootstrap, BootstrapPeer{PeerID: pid, Addr: addr})
	}
	for _, a := range rec.ExternalAddrs {
		addr, err := ma.NewMultiaddr(a)
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: external addr: %v", errs.ErrCorrupted, err)
		}
		m.ExternalAddrs = append(m.ExternalAddrs, addr)
	}
	for _, f := range rec.OwnedFingerprints {
		fp, err := fingerprint.Parse(f)
		if err != nil {
			return Manifest{}, fmt.Errorf("%w: owned fingerprint: %v", errs.ErrCorrupted, err)
		}
		m.OwnedFingerprints = append(m.OwnedFingerprints, fp)
	}
	return m, nil
}

// ─── keypair file ──────────────────────────────────────────────────────

func writeKeypair(dir string, kp identity.Keypair) error {
	var buf bytes.Buffer
	buf.WriteByte(formatV1)
	buf.Write(kp.Priv) // 64 bytes: seed || public key
	return atomicWrite(filepath.Join(dir, "keypair"), buf.Bytes())
}

func readKeypair(dir string) (identity.Keypair, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "keypair"))
	if err != nil {
		return identity.Keypair{}, fmt.Errorf("%w: read keypair: %v", errs.ErrIO, err)
	}
	if len(raw) != 1+ed25519.PrivateKeySize || raw[0] != formatV1 {
		return identity.Keypair{}, fmt.Errorf("%w: keypair: malformed record", errs.ErrCorrupted)
	}
	priv := ed25519.PrivateKey(append([]byte(nil), raw[1:]...))
	return identity.Keypair{
		Priv: priv,
		Pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// ─── seed file (optional) ──────────────────────────────────────────────

func writeSeed(dir string, seed uint64) error {
	var buf bytes.Buffer
	buf.WriteByte(formatV1)
	var seedBytes [8]byte
	binary.BigEndian.PutUint64(seedBytes[:], seed)
	buf.Write(seedBytes[:])
	return atomicWrite(filepath.Join(dir, "seed"), buf.Bytes())
}

func readSeed(dir string) (uint64, bool, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "seed"))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: read seed: %v", errs.ErrIO, err)
	}
	if len(raw) != 9 || raw[0] != formatV1 {
		return 0, false, fmt.Errorf("%w: seed: malformed record", errs.ErrCorrupted)
	}
	return binary.BigEndian.Uint64(raw[1:]), true, nil
}

// ─── atomic write helper ───────────────────────────────────────────────

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
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
	return os.Rename(tmp, path)
}
