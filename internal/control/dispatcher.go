package control

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/liberum-neto/liberum-neto/internal/errs"
	"github.com/liberum-neto/liberum-neto/internal/fingerprint"
	"github.com/liberum-neto/liberum-neto/internal/manager"
)

// Dispatcher executes decoded Control API requests against a Node
// Manager and produces the corresponding Reply, independent of any
// particular transport (the Unix-socket Server, or a test harness that
// calls it directly).
type Dispatcher struct {
	mgr *manager.Manager
}

// NewDispatcher builds a Dispatcher over mgr.
func NewDispatcher(mgr *manager.Manager) *Dispatcher {
	return &Dispatcher{mgr: mgr}
}

// Dispatch decodes the request body for op and executes it.
func (d *Dispatcher) Dispatch(ctx context.Context, op Opcode, body []byte) Reply {
	switch op {
	case OpNewNode:
		var req NewNodeRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.newNode(req)
	case OpConfigNode:
		var req ConfigNodeRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.configNode(req)
	case OpStartNode:
		var req StartNodeRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return errorReply(d.mgr.Start(ctx, req.Name))
	case OpStopNode:
		var req StopNodeRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return errorReply(d.mgr.Stop(ctx, req.Name))
	case OpListNodes:
		return d.listNodes()
	case OpGetPeerId:
		var req GetPeerIdRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.getPeerId(req)
	case OpDial:
		var req DialRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.dial(ctx, req)
	case OpPublishFile:
		var req PublishFileRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.publishFile(ctx, req)
	case OpDownloadFile:
		var req DownloadFileRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.downloadFile(ctx, req)
	case OpGetProviders:
		var req GetProvidersRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.getProviders(ctx, req)
	case OpDeleteObject:
		var req DeleteObjectRequest
		if err := DecodeRequestBody(body, &req); err != nil {
			return errorReply(err)
		}
		return d.deleteObject(ctx, req)
	default:
		return errorReply(fmt.Errorf("%w: unrecognized opcode %d", errs.ErrProtocolFraming, op))
	}
}

func errorReply(err error) Reply {
	return Reply{Err: ErrorReplyFrom(err)}
}

func (d *Dispatcher) newNode(req NewNodeRequest) Reply {
	return errorReply(d.mgr.NewNode(req.Name, req.Seed))
}

func (d *Dispatcher) configNode(req ConfigNodeRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	switch req.Op {
	case ConfigAddBootstrap:
		p, err := peer.Decode(req.PeerID)
		if err != nil {
			return errorReply(fmt.Errorf("%w: bootstrap peer id: %v", errs.ErrBadName, err))
		}
		addr, err := ma.NewMultiaddr(req.Addr)
		if err != nil {
			return errorReply(fmt.Errorf("%w: %v", errs.ErrBadMultiaddr, err))
		}
		return errorReply(actor.AddBootstrap(p, addr))
	case ConfigAddExternalAddr:
		addr, err := ma.NewMultiaddr(req.Addr)
		if err != nil {
			return errorReply(fmt.Errorf("%w: %v", errs.ErrBadMultiaddr, err))
		}
		return errorReply(actor.AddExternalAddress(addr))
	case ConfigRemoveBootstrap:
		p, err := peer.Decode(req.PeerID)
		if err != nil {
			return errorReply(fmt.Errorf("%w: bootstrap peer id: %v", errs.ErrBadName, err))
		}
		return errorReply(actor.RemoveBootstrap(p))
	default:
		return errorReply(fmt.Errorf("%w: unrecognized config op %d", errs.ErrBadName, req.Op))
	}
}

func (d *Dispatcher) listNodes() Reply {
	infos := d.mgr.ListNodes()
	nodes := make([]NodeStatus, len(infos))
	for i, info := range infos {
		nodes[i] = NodeStatus{Name: info.Name, Running: info.IsRunning}
	}
	return Reply{Nodes: nodes}
}

func (d *Dispatcher) getPeerId(req GetPeerIdRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	id, err := actor.GetPeerId()
	if err != nil {
		return errorReply(err)
	}
	return Reply{PeerID: id.String()}
}

func (d *Dispatcher) dial(ctx context.Context, req DialRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	p, err := peer.Decode(req.PeerID)
	if err != nil {
		return errorReply(fmt.Errorf("%w: peer id: %v", errs.ErrBadName, err))
	}
	addr, err := ma.NewMultiaddr(req.Addr)
	if err != nil {
		return errorReply(fmt.Errorf("%w: %v", errs.ErrBadMultiaddr, err))
	}
	return errorReply(actor.Dial(ctx, p, addr))
}

func (d *Dispatcher) publishFile(ctx context.Context, req PublishFileRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	fp, err := actor.Publish(ctx, req.Bytes)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Fingerprint: fp.String()}
}

func (d *Dispatcher) downloadFile(ctx context.Context, req DownloadFileRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	fp, err := fingerprint.Parse(req.Fingerprint)
	if err != nil {
		return errorReply(err)
	}
	data, err := actor.Download(ctx, fp)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Bytes: data}
}

func (d *Dispatcher) getProviders(ctx context.Context, req GetProvidersRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	fp, err := fingerprint.Parse(req.Fingerprint)
	if err != nil {
		return errorReply(err)
	}
	peers, err := actor.GetProviders(ctx, fp)
	if err != nil {
		return errorReply(err)
	}
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = p.String()
	}
	return Reply{Providers: ids}
}

func (d *Dispatcher) deleteObject(ctx context.Context, req DeleteObjectRequest) Reply {
	actor, err := d.mgr.Node(req.Name)
	if err != nil {
		return errorReply(err)
	}
	fp, err := fingerprint.Parse(req.Fingerprint)
	if err != nil {
		return errorReply(err)
	}
	summary, err := actor.Delete(ctx, fp)
	if err != nil {
		return errorReply(err)
	}
	return Reply{DeleteSummary: &DeleteSummary{
		DeletedMyself: summary.DeletedMyself,
		Successful:    summary.Successful,
		Failed:        summary.Failed,
	}}
}
