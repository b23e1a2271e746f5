// Package control implements the Control API's wire surface (spec
// §4.9): the request/reply types the external socket carries, and the
// versioned binary envelope they travel in. It reuses the Transfer
// Protocol's tag-then-length-prefix idiom, with `gob` filling in for
// the request/reply payloads themselves since — unlike the Transfer
// Protocol's bit-exact layout — the Control API's own wire format is
// spec's to choose, and gob is what the rest of this codebase already
// uses for versioned structured records (internal/objectstore,
// internal/nodestore).
package control

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/liberum-neto/liberum-neto/internal/errs"
)

const formatV1 byte = 1

// Opcode identifies which Control API request a frame carries.
type Opcode byte

const (
	OpNewNode Opcode = iota + 1
	OpConfigNode
	OpStartNode
	OpStopNode
	OpListNodes
	OpGetPeerId
	OpDial
	OpPublishFile
	OpDownloadFile
	OpGetProviders
	OpDeleteObject
)

func (op Opcode) String() string {
	switch op {
	case OpNewNode:
		return "NewNode"
	case OpConfigNode:
		return "ConfigNode"
	case OpStartNode:
		return "StartNode"
	case OpStopNode:
		return "StopNode"
	case OpListNodes:
		return "ListNodes"
	case OpGetPeerId:
		return "GetPeerId"
	case OpDial:
		return "Dial"
	case OpPublishFile:
		return "PublishFile"
	case OpDownloadFile:
		return "DownloadFile"
	case OpGetProviders:
		return "GetProviders"
	case OpDeleteObject:
		return "DeleteObject"
	default:
		return fmt.Sprintf("Opcode(%d)", byte(op))
	}
}

// ConfigOp enumerates ConfigNode's sub-operations (spec §4.9: "op ∈
// {AddBootstrap, AddExternalAddr, Remove…}").
type ConfigOp byte

const (
	ConfigAddBootstrap ConfigOp = iota + 1
	ConfigAddExternalAddr
	ConfigRemoveBootstrap
)

// Request payload variants, one per Opcode (spec §4.9).
type (
	NewNodeRequest struct {
		Name string
		Seed *uint64
	}
	ConfigNodeRequest struct {
		Name   string
		Op     ConfigOp
		PeerID string // set for AddBootstrap / RemoveBootstrap
		Addr   string // set for AddBootstrap / AddExternalAddr
	}
	StartNodeRequest struct{ Name string }
	StopNodeRequest  struct{ Name string }
	ListNodesRequest struct{}
	GetPeerIdRequest struct{ Name string }
	DialRequest      struct {
		Name   string
		PeerID string
		Addr   string
	}
	PublishFileRequest struct {
		Name  string
		Bytes []byte
	}
	DownloadFileRequest struct {
		Name        string
		Fingerprint string
	}
	GetProvidersRequest struct {
		Name        string
		Fingerprint string
	}
	DeleteObjectRequest struct {
		Name        string
		Fingerprint string
	}
)

// NodeStatus is one ListNodes entry in a Reply.
type NodeStatus struct {
	Name    string
	Running bool
}

// DeleteSummary mirrors swarm.DeleteSummary over the wire, without
// coupling this package to the swarm package.
type DeleteSummary struct {
	DeletedMyself bool
	Successful    uint64
	Failed        uint64
}

// ErrorReply carries a taxonomy Kind plus a human-readable message
// (spec §7, SPEC_FULL Ambient Stack: "error reply variant carries the
// taxonomy's kind as a small enum plus a human string").
type ErrorReply struct {
	Kind    string
	Message string
}

// Reply is the single reply envelope payload; only the field(s)
// relevant to the originating request's opcode are populated.
type Reply struct {
	Err *ErrorReply

	PeerID        string
	Nodes         []NodeStatus
	Fingerprint   string
	Bytes         []byte
	Providers     []string
	DeleteSummary *DeleteSummary
}

// ErrorReplyFrom builds an ErrorReply from err, classifying it via the
// shared taxonomy (spec §7).
func ErrorReplyFrom(err error) *ErrorReply {
	if err == nil {
		return nil
	}
	return &ErrorReply{Kind: errs.ClassOf(err).String(), Message: err.Error()}
}

// WriteRequest frames op and payload as `version(1) || opcode(1) ||
// len(u32,be) || gob(payload)`.
func WriteRequest(w io.Writer, op Opcode, payload any) error {
	return writeFrame(w, byte(op), payload)
}

// PeekRequest reads one request frame's header and returns its opcode
// plus the still-undecoded body bytes, so the caller can pick the
// right concrete *Request struct before decoding (the opcode is only
// known once the header has been read).
func PeekRequest(r io.Reader) (Opcode, []byte, error) {
	tag, body, err := readFrameBody(r)
	return Opcode(tag), body, err
}

// DecodeRequestBody gob-decodes a body previously returned by
// PeekRequest into dst.
func DecodeRequestBody(body []byte, dst any) error {
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode control frame body: %v", errs.ErrProtocolFraming, err)
	}
	return nil
}

// WriteReply frames a Reply the same way a request is framed, tagged
// with opcode 0 (replies don't need to disambiguate by opcode — the
// client already knows which request it sent).
func WriteReply(w io.Writer, reply Reply) error {
	return writeFrame(w, 0, reply)
}

// ReadReply reads one reply frame.
func ReadReply(r io.Reader) (Reply, error) {
	_, body, err := readFrameBody(r)
	if err != nil {
		return Reply{}, err
	}
	var reply Reply
	if err := DecodeRequestBody(body, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func writeFrame(w io.Writer, tag byte, payload any) error {
	var body bytes.Buffer
	if err := gob.NewEncoder(&body).Encode(payload); err != nil {
		return fmt.Errorf("control: encode payload: %w", err)
	}

	head := make([]byte, 2+4)
	head[0] = formatV1
	head[1] = tag
	binary.BigEndian.PutUint32(head[2:], uint32(body.Len()))

	if _, err := w.Write(head); err != nil {
		return fmt.Errorf("%w: write control frame header: %v", errs.ErrProtocolFraming, err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("%w: write control frame body: %v", errs.ErrProtocolFraming, err)
	}
	return nil
}

func readFrameBody(r io.Reader) (byte, []byte, error) {
	var head [6]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: read control frame header: %v", errs.ErrProtocolFraming, err)
	}
	if head[0] != formatV1 {
		return 0, nil, fmt.Errorf("%w: unsupported control protocol version %d", errs.ErrProtocolFraming, head[0])
	}
	tag := head[1]
	n := binary.BigEndian.Uint32(head[2:])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("%w: read control frame body: %v", errs.ErrProtocolFraming, err)
	}
	return tag, body, nil
}
