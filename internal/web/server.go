// Package web serves the front-panel control endpoint.
//
// Requests are matched on the raw bytes of the first read and connections
// are handled one at a time. Every reply is one of four fixed HTTP/1.0 responses.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/power-bridge/internal/power"
)

// ReadLimit caps the bytes read from each request.
const ReadLimit = 1024

// DefaultAddr binds all interfaces on port 80.
const DefaultAddr = ":80"

// PowerReader is satisfied by *power.Cell.
type PowerReader interface {
	Load() power.State
}

// Toggler presses the host's power button.
type Toggler interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// Server accepts and answers one connection at a time.
type Server struct {
	ln     net.Listener
	power  PowerReader
	toggle Toggler
	pulse  time.Duration

	mu   sync.Mutex
	conn net.Conn // in-flight connection, closed on shutdown

	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Listen binds addr. A bind failure is returned as-is: there is no fallback.
func Listen(addr string, pw PowerReader, toggle Toggler, pulse time.Duration) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Server{
		ln:     ln,
		power:  pw,
		toggle: toggle,
		pulse:  pulse,
		done:   make(chan struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done or the server is closed.
// Accept errors other than closure are logged and retried.
func (s *Server) Serve(ctx context.Context) error {
	s.started.Store(true)
	defer close(s.done)

	stop := context.AfterFunc(ctx, func() { s.shutdown() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.WithError(err).Warn("web: accept failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	logger := log.WithField("remote", conn.RemoteAddr().String())
	logger.Debug("web: client connected")

	buf := make([]byte, ReadLimit)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil {
			logger.WithError(err).Debug("web: client closed before request")
		}
		return
	}
	req := buf[:n]

	route := Match(req)
	resp := s.respond(ctx, route)
	logger = logger.WithFields(log.Fields{
		"request": requestLine(req),
		"route":   route.String(),
		"status":  resp.Status,
	})

	if _, err := conn.Write(resp.Bytes()); err != nil {
		logger.WithError(err).Warn("web: write failed")
		return
	}
	logger.Info("web: request served")
}

func (s *Server) respond(ctx context.Context, route Route) Response {
	switch route {
	case RouteRoot:
		return Response{Status: 200, ContentType: "text/plain", Body: bodyHello}
	case RouteStatus:
		return Response{Status: 200, ContentType: "application/json", Body: StatusBody(s.power.Load().String())}
	case RouteToggle:
		if err := s.toggle.Pulse(ctx, s.pulse); err != nil {
			log.WithError(err).Warn("web: toggle pulse failed")
		}
		return Response{Status: 200, ContentType: "application/json", Body: bodyToggled}
	default:
		return Response{Status: 404, ContentType: "text/plain", Body: bodyNotFound}
	}
}

// shutdown closes the listener and any in-flight connection.
func (s *Server) shutdown() {
	s.closeOnce.Do(func() {
		s.closeErr = s.ln.Close()
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.mu.Unlock()
	})
}

// Close stops the server and, if Serve is running, waits for it to return
// so the port is fully released. Safe to call more than once.
func (s *Server) Close() error {
	s.shutdown()
	if s.started.Load() {
		<-s.done
	}
	if s.closeErr != nil && !errors.Is(s.closeErr, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", s.closeErr)
	}
	return nil
}
