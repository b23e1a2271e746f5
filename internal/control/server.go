package control

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"github.com/liberum-neto/liberum-neto/internal/logging"
	"github.com/liberum-neto/liberum-neto/internal/manager"
)

var log = logging.Named(logging.Control)

// Server is the reference Control API transport: a Unix domain socket
// accepting one connection per request (spec §4.9: "kept minimal and
// swappable — any transport that can carry the same request/reply
// frames is conforming").
type Server struct {
	path string
	disp *Dispatcher

	listener net.Listener
	wg       sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewServer builds a Server dispatching onto mgr, listening at
// socketPath once Serve is called.
func NewServer(socketPath string, mgr *manager.Manager) *Server {
	return &Server{path: socketPath, disp: NewDispatcher(mgr)}
}

// Serve binds the Unix socket and accepts connections until ctx is
// cancelled or Close is called. It blocks; callers typically run it in
// its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.RemoveAll(s.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	s.listener = ln
	log.Infow("control socket listening", "path", s.path)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections and removes the socket file. It
// returns without waiting; Serve returns once in-flight connections
// have finished.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	os.RemoveAll(s.path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	op, body, err := PeekRequest(conn)
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Debugw("read control request failed", "err", err)
		}
		return
	}

	reply := s.disp.Dispatch(ctx, op, body)
	if err := WriteReply(conn, reply); err != nil {
		log.Debugw("write control reply failed", "op", op.String(), "err", err)
	}
}
