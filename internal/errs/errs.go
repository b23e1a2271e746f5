// Package errs collects the error taxonomy shared by every layer of the
// core: Object Store, Swarm Runner, Node Actor, Node Manager, and the
// Control API all return one of these kinds (wrapped with context via
// fmt.Errorf("...: %w", ...)) rather than ad-hoc error strings, so a
// caller at any layer can branch on kind with errors.Is.
package errs

import "errors"

// Input-class errors: bad caller input, never fatal to the node.
var (
	ErrBadName        = errors.New("invalid node name")
	ErrBadMultiaddr   = errors.New("invalid multiaddress")
	ErrBadFingerprint = errors.New("invalid fingerprint encoding")
)

// State-class errors.
var (
	ErrNotRunning     = errors.New("node not running")
	ErrAlreadyRunning = errors.New("node already running")
	ErrUnknownNode    = errors.New("unknown node")
	ErrExists         = errors.New("already exists")
)

// Network-class errors.
var (
	ErrDial                = errors.New("dial failed")
	ErrNoProviders         = errors.New("no providers")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrTimeout             = errors.New("timeout")
	ErrCancelled           = errors.New("cancelled")
	ErrNotConnected        = errors.New("not connected")
	ErrFailed              = errors.New("operation failed")
)

// Protocol-class errors.
var (
	ErrAbsent             = errors.New("object absent")
	ErrNotOwner           = errors.New("not owner")
	ErrIntegrityMismatch  = errors.New("integrity mismatch")
	ErrProtocolFraming    = errors.New("protocol framing error")
	ErrBusy               = errors.New("busy")
)

// Storage-class errors.
var (
	ErrIO            = errors.New("io error")
	ErrCorrupted     = errors.New("corrupted data")
	ErrIntegrityErr  = errors.New("integrity error")
)

// Fatal-class errors: the daemon refuses to bring the node up.
var (
	ErrListenFailed = errors.New("listen failed")
)

// Kind is the coarse taxonomy group a Control API error reply carries,
// independent of the specific wrapped sentinel above.
type Kind uint8

const (
	KindInput Kind = iota
	KindState
	KindNetwork
	KindProtocol
	KindStorage
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindState:
		return "state"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindStorage:
		return "storage"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassOf maps a sentinel to its taxonomy Kind. Unrecognized errors are
// reported as KindStorage since most uncategorized failures in this
// codebase bubble up from disk I/O.
func ClassOf(err error) Kind {
	switch {
	case isAny(err, ErrBadName, ErrBadMultiaddr, ErrBadFingerprint):
		return KindInput
	case isAny(err, ErrNotRunning, ErrAlreadyRunning, ErrUnknownNode, ErrExists):
		return KindState
	case isAny(err, ErrDial, ErrNoProviders, ErrProviderUnreachable, ErrTimeout, ErrCancelled, ErrNotConnected, ErrFailed):
		return KindNetwork
	case isAny(err, ErrAbsent, ErrNotOwner, ErrIntegrityMismatch, ErrProtocolFraming, ErrBusy):
		return KindProtocol
	case isAny(err, ErrListenFailed):
		return KindFatal
	default:
		return KindStorage
	}
}

func isAny(err error, sentinels ...error) bool {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
