// Package fingerprint implements the canonical content identifier used
// throughout the core: a 32-byte BLAKE3 digest of an object's bytes,
// presented base58-encoded. See spec §3 (I-1) and the GLOSSARY.
package fingerprint

import (
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"

	"github.com/liberum-neto/liberum-neto/internal/errs"
)

// errBadEncoding is the sentinel wrapped into every Parse failure.
var errBadEncoding = errs.ErrBadFingerprint

// Size is the digest length in bytes.
const Size = 32

// Fingerprint is a fixed-size content identifier. It is a value type
// (array, not slice) so it can be used directly as a map key, e.g. the
// Swarm Runner's provider cache and the Object Store's in-memory index.
type Fingerprint [Size]byte

// Of computes the fingerprint of b.
func Of(b []byte) Fingerprint {
	var fp Fingerprint
	sum := blake3.Sum256(b)
	copy(fp[:], sum[:])
	return fp
}

// String returns the base58 encoding of fp.
func (fp Fingerprint) String() string {
	return base58.Encode(fp[:])
}

// IsZero reports whether fp is the zero value, used by callers that
// treat a zero Fingerprint as "no fingerprint supplied".
func (fp Fingerprint) IsZero() bool {
	return fp == Fingerprint{}
}

// Parse decodes a base58-encoded fingerprint. Any decoding error or
// wrong-length result is an Input-class error per spec §7.1.
func Parse(s string) (Fingerprint, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: %s: %v", errBadEncoding, s, err)
	}
	if len(raw) != Size {
		return Fingerprint{}, fmt.Errorf("%w: %s: expected %d bytes, got %d", errBadEncoding, s, Size, len(raw))
	}
	var fp Fingerprint
	copy(fp[:], raw)
	return fp, nil
}

// Verify reports whether b actually hashes to fp, the mandatory
// integrity check spec §4.3 requires after every fetch.
func Verify(fp Fingerprint, b []byte) bool {
	return Of(b) == fp
}
