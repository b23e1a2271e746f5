package transfer

import (
	"context"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/logging"
)

var log = logging.Named(logging.Transfer)

// ProtocolID is the libp2p protocol this package speaks.
const ProtocolID protocol.ID = "/liberum-neto/transfer/1.0.0"

// Backend supplies the local answers a Service needs to serve incoming
// FetchObject/DeleteObject requests — the Object Store, reached through
// a narrow interface so this package doesn't depend on its concrete
// type beyond the outcome enum it already exports.
type Backend interface {
	Fetch(fp fingerprint.Fingerprint) ([]byte, bool)
	Delete(fp fingerprint.Fingerprint, requester peer.ID, signature []byte) (Status, error)
}

// Service is the server side of the Transfer Protocol: one instance per
// node, registered against that node's libp2p host.
type Service struct {
	host           host.Host
	backend        Backend
	maxMessageSize uint32

	repliesByStatus *prometheus.CounterVec
}

// NewService builds a Service. maxMessageSize of 0 selects
// DefaultMaxMessageSize.
func NewService(h host.Host, backend Backend, maxMessageSize uint32) *Service {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &Service{
		host:           h,
		backend:        backend,
		maxMessageSize: maxMessageSize,
		repliesByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_replies_total",
			Help: "Transfer protocol replies served, by request kind and status.",
		}, []string{"request", "status"}),
	}
}

// Collectors exposes this service's prometheus metrics for registration.
func (s *Service) Collectors() []prometheus.Collector {
	return []prometheus.Collector{s.repliesByStatus}
}

// Start registers the stream handler on this node's host.
func (s *Service) Start() {
	s.host.SetStreamHandler(ProtocolID, s.handleStream)
}

// Stop deregisters the stream handler.
func (s *Service) Stop() {
	s.host.RemoveStreamHandler(ProtocolID)
}

func (s *Service) handleStream(stream network.Stream) {
	defer stream.Close()

	tag, err := ReadTag(stream)
	if err != nil {
		log.Debugw("transfer: failed to read request tag", "peer", stream.Conn().RemotePeer(), "err", err)
		stream.Reset()
		return
	}

	switch tag {
	case tagFetch:
		s.serveFetch(stream)
	case tagDelete:
		s.serveDelete(stream)
	default:
		log.Warnw("transfer: unrecognized request tag, terminating stream", "peer", stream.Conn().RemotePeer(), "tag", tag)
		stream.Reset()
	}
}

func (s *Service) serveFetch(stream network.Stream) {
	req, err := DecodeFetchRequest(stream)
	if err != nil {
		stream.Reset()
		return
	}

	bytes, ok := s.backend.Fetch(req.Fingerprint)
	reply := FetchReply{Status: StatusAbsent}
	if ok {
		reply = FetchReply{Status: StatusOk, Bytes: bytes}
	}

	s.repliesByStatus.WithLabelValues("fetch", reply.Status.String()).Inc()
	if err := EncodeFetchReply(stream, reply); err != nil {
		log.Debugw("transfer: failed to write fetch reply", "err", err)
		stream.Reset()
	}
}

func (s *Service) serveDelete(stream network.Stream) {
	req, err := DecodeDeleteRequest(stream)
	if err != nil {
		stream.Reset()
		return
	}

	requester := stream.Conn().RemotePeer()
	status, deleteErr := s.backend.Delete(req.Fingerprint, requester, req.Signature)
	if deleteErr != nil {
		log.Debugw("transfer: delete backend error", "err", deleteErr)
	}

	reply := DeleteReply{Status: status}
	if status == StatusOk {
		reply.SuccessCount = 1
	}

	s.repliesByStatus.WithLabelValues("delete", reply.Status.String()).Inc()
	if err := EncodeDeleteReply(stream, reply); err != nil {
		log.Debugw("transfer: failed to write delete reply", "err", err)
		stream.Reset()
	}
}

// FetchObject dials p and requests fp over the Transfer Protocol,
// returning its reply (spec §4.3 Download: "attempt FetchObject over
// the transfer protocol"). The caller is responsible for verifying the
// returned bytes' fingerprint — this package only moves bytes.
func FetchObject(ctx context.Context, h host.Host, p peer.ID, fp fingerprint.Fingerprint, maxMessageSize uint32) (FetchReply, error) {
	if maxMessageSize == 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	stream, err := h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return FetchReply{}, fmt.Errorf("%w: open transfer stream to %s: %v", errs.ErrProviderUnreachable, p, err)
	}
	defer stream.Close()

	if err := EncodeFetchRequest(stream, FetchRequest{Fingerprint: fp}); err != nil {
		return FetchReply{}, err
	}
	if _, err := ReadTag(stream); err != nil {
		return FetchReply{}, err
	}
	reply, err := DecodeFetchReply(stream, maxMessageSize)
	if err != nil {
		if err == io.EOF {
			return FetchReply{}, fmt.Errorf("%w: transfer stream closed early by %s", errs.ErrProviderUnreachable, p)
		}
		return FetchReply{}, err
	}
	return reply, nil
}

// SendDeleteObject dials p and sends an owner-signed DeleteObject
// request over the Transfer Protocol (spec §4.3 Delete).
func SendDeleteObject(ctx context.Context, h host.Host, p peer.ID, fp fingerprint.Fingerprint, signature []byte) (DeleteReply, error) {
	stream, err := h.NewStream(ctx, p, ProtocolID)
	if err != nil {
		return DeleteReply{}, fmt.Errorf("%w: open transfer stream to %s: %v", errs.ErrProviderUnreachable, p, err)
	}
	defer stream.Close()

	if err := EncodeDeleteRequest(stream, DeleteRequest{Fingerprint: fp, Signature: signature}); err != nil {
		return DeleteReply{}, err
	}
	if _, err := ReadTag(stream); err != nil {
		return DeleteReply{}, err
	}
	return DecodeDeleteReply(stream)
}
