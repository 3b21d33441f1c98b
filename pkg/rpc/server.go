// Package rpc implements the length-framed TCP request/response pattern
// shared by the tracker and every peer: one accepted connection serves
// exactly one request and is then closed, per the wire protocol's
// ordering guarantees. Modeled on the teacher's transport accept loop and
// per-connection worker, simplified from a persistent multiplexed session
// down to the mandated one-shot model.
package rpc

import (
	"context"
	"net"
	"time"

	"github.com/Snider/Fabric/pkg/logging"
	"github.com/Snider/Fabric/pkg/wire"
)

// Handler processes one request body and returns the response body to
// write back, or an error to translate into an ERROR frame.
type Handler func(ctx context.Context, body []byte) ([]byte, error)

// ErrorEncoder converts a handler error into the wire bytes of an ERROR
// frame. Kept injectable so callers can use their own error-body shape.
type ErrorEncoder func(err error) []byte

// Server accepts connections on a single listener and dispatches each one
// to a Handler, enforcing a read/write deadline per connection.
type Server struct {
	Listener     net.Listener
	Handler      Handler
	EncodeError  ErrorEncoder
	ConnDeadline time.Duration
	Logger       *logging.Logger
}

// NewServer binds addr and returns a Server ready to Serve.
func NewServer(addr string, handler Handler, encodeErr ErrorEncoder, deadline time.Duration, logger *logging.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		Listener:     ln,
		Handler:      handler,
		EncodeError:  encodeErr,
		ConnDeadline: deadline,
		Logger:       logger,
	}, nil
}

// Serve runs the accept loop until the listener is closed or ctx is
// cancelled. Each connection is handled in its own goroutine.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Listener.Close()
	}()

	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if s.Logger != nil {
				s.Logger.Warn("rpc accept failed", logging.Fields{"error": err.Error()})
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if s.ConnDeadline > 0 {
		conn.SetDeadline(time.Now().Add(s.ConnDeadline))
	}

	body, err := wire.ReadFrame(conn)
	if err != nil {
		s.writeError(conn, err)
		return
	}

	resp, err := s.Handler(ctx, body)
	if err != nil {
		s.writeError(conn, err)
		return
	}

	if err := wire.WriteFrame(conn, resp); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("rpc write response failed", logging.Fields{"error": err.Error()})
		}
	}
}

func (s *Server) writeError(conn net.Conn, err error) {
	if s.Logger != nil {
		s.Logger.Debug("rpc handler error", logging.Fields{"error": err.Error()})
	}
	if s.EncodeError == nil {
		return
	}
	body := s.EncodeError(err)
	if werr := wire.WriteFrame(conn, body); werr != nil && s.Logger != nil {
		s.Logger.Warn("rpc write error frame failed", logging.Fields{"error": werr.Error()})
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.Listener.Close()
}

// Addr returns the server's bound address.
func (s *Server) Addr() net.Addr {
	return s.Listener.Addr()
}
