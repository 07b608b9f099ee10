// Package server accepts client connections and hands each one to its own
// session goroutine. Sessions never block each other; the only state they
// share is the immutable module registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/netutil"

	"github.com/modserve/modserve/pkg/dispatch"
	"github.com/modserve/modserve/pkg/logging"
	"github.com/modserve/modserve/pkg/registry"
	"github.com/modserve/modserve/pkg/session"
)

// ErrAlreadyRunning is returned by Serve when the server is already serving.
var ErrAlreadyRunning = errors.New("server: already running")

// Server wires the registry, dispatcher and fanouts together and runs the
// accept loop.
type Server struct {
	reg     *registry.Registry
	disp    *dispatch.Dispatcher
	loggers *dispatch.LoggerFanout
	log     *slog.Logger

	addr         string
	maxConns     int
	pollInterval time.Duration

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	running  bool
	wg       sync.WaitGroup
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAddr sets the listen address (host:port).
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMaxConnections caps concurrent connections. Zero means unlimited.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// WithPollInterval sets the session parse-loop poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.pollInterval = d }
}

// New creates a Server over an already-built registry.
func New(reg *registry.Registry, opts ...Option) *Server {
	s := &Server{
		reg:  reg,
		log:  logging.Nop(),
		addr: ":8080",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loggers = dispatch.NewLoggerFanout(reg.Loggers(), s.log)
	s.disp = dispatch.NewDispatcher(reg, s.log)
	return s
}

// Loggers returns the server-wide logger fanout.
func (s *Server) Loggers() *dispatch.LoggerFanout { return s.loggers }

// Addr returns the bound address once serving, or the configured address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or Shutdown is
// called. Each accepted connection runs as one session goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrAlreadyRunning
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.log.Info("server listening", "addr", ln.Addr().String(), "handlers", len(s.reg.Handlers()))

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var acceptErr error
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			acceptErr = fmt.Errorf("server: accept: %w", err)
			break
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.listener = nil
	s.mu.Unlock()

	s.log.Info("server stopped")
	return acceptErr
}

// handleConn runs one session for an accepted socket.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()

	raw := session.WrapNetConn(conn, s.loggers)
	opts := []session.Option{session.WithOperationalLogger(s.log)}
	if s.pollInterval > 0 {
		opts = append(opts, session.WithPollInterval(s.pollInterval))
	}
	sess := session.New(raw, s.reg, s.disp, s.loggers, opts...)

	s.log.Debug("session started", "session", sess.ID(), "remote", conn.RemoteAddr().String())
	if err := sess.Run(ctx); err != nil {
		s.log.Debug("session ended with error", "session", sess.ID(), "error", err)
		return
	}
	s.log.Debug("session ended", "session", sess.ID())
}

// Shutdown stops accepting, cancels all session contexts and waits for them
// to drain, up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server: shutdown: %w", ctx.Err())
	}
}
