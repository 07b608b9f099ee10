package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/modserve/modserve/pkg/dispatch"
	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/logging"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/registry"
)

// Polling defaults for the parse loop.
const (
	defaultPollInterval = time.Millisecond
	maxPollInterval     = 20 * time.Millisecond
)

// Session drives one client connection through its lifetime:
// Accepted -> Wrapped -> Parsing -> Dispatching -> Writing -> (KeepAlive -> Parsing | Closed).
type Session struct {
	id   string
	raw  module.Connection
	conn module.Connection

	reg     *registry.Registry
	disp    *dispatch.Dispatcher
	connLog module.Logger
	log     *slog.Logger

	parser  module.ParserInstance
	input   *trackedInput
	pending []*httpmsg.Request

	ctx          context.Context
	pollInterval time.Duration
	wrapped      bool
	err          error
}

// stateFunc is one state of the session machine; nil terminates the run.
type stateFunc func(*Session) stateFunc

// Option configures a Session.
type Option func(*Session)

// WithPollInterval sets the initial parse-loop poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithOperationalLogger sets the slog logger for session diagnostics.
func WithOperationalLogger(log *slog.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// New builds a session for an accepted raw connection. loggers is the
// server-wide logger fanout; the session scopes it with its own ID so one
// connection's lines stay attributable and ordered.
func New(raw module.Connection, reg *registry.Registry, disp *dispatch.Dispatcher, loggers *dispatch.LoggerFanout, opts ...Option) *Session {
	id := uuid.NewString()[:8]
	s := &Session{
		id:           id,
		raw:          raw,
		conn:         raw,
		reg:          reg,
		disp:         disp,
		connLog:      loggers.Scoped(id),
		log:          logging.Nop(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Err returns the fatal error that closed the session, if any.
func (s *Session) Err() error { return s.err }

// Emit implements module.Emitter: the parser pushes completed requests here
// synchronously during Parse. They are dispatched strictly in this order.
func (s *Session) Emit(req *httpmsg.Request) {
	s.pending = append(s.pending, req)
}

// Run executes the session state machine until the connection closes.
// Cancelling ctx interrupts the parse loop promptly; an in-flight dispatch
// completes but its response is discarded rather than written.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	for state := stateWrap; state != nil; {
		state = state(s)
	}
	return s.err
}

// fatal records the error that terminates the session and reports it on
// both the operational log and the logger fanout.
func (s *Session) fatal(stage string, err error) {
	s.err = fmt.Errorf("session %s: %s: %w", s.id, stage, err)
	s.log.Error("session terminating", "session", s.id, "stage", stage, "error", err)
	s.connLog.Log(fmt.Sprintf("session error (%s): %v", stage, err))
}

// stateWrap decorates the raw connection when a wrapper module is
// configured. Wrapper failure is fatal: the raw connection closes without a
// response.
func stateWrap(s *Session) stateFunc {
	if w := s.reg.Wrapper(); w != nil {
		wrapped, err := safeWrap(w, s.raw)
		if err != nil {
			s.fatal("wrap", err)
			return stateClose
		}
		s.conn = wrapped
		s.wrapped = true
	}

	// One parser instance per session, bound to the default connection.
	// It survives keep-alive request boundaries.
	s.input = newTrackedInput(s.conn)
	parser, err := safeNewInstance(s.reg.Parser(), s.input, s.connLog, s)
	if err != nil {
		s.fatal("parser create", err)
		return stateClose
	}
	s.parser = parser
	return stateParse
}

// stateParse polls the parser over the non-blocking input until it emits at
// least one request, the peer closes, the parser fails, or the session is
// cancelled. Zero-progress polls back off exponentially.
func stateParse(s *Session) stateFunc {
	backoff := s.pollInterval
	for {
		if s.ctx.Err() != nil {
			return stateClose
		}
		if err := s.safeParse(); err != nil {
			s.fatal("parse", err)
			return stateClose
		}
		if len(s.pending) > 0 {
			return stateDispatch
		}
		if s.input.takeProgress() > 0 {
			// Bytes arrived but no complete request yet; keep parsing
			// without backing off.
			backoff = s.pollInterval
			continue
		}
		if s.input.closedByPeer() {
			s.log.Debug("peer closed connection", "session", s.id)
			return stateClose
		}

		// No data yet, and the transport has not signalled closure.
		select {
		case <-s.ctx.Done():
			return stateClose
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxPollInterval {
			backoff = maxPollInterval
		}
	}
}

// stateDispatch runs the oldest pending request through the handler chain.
// Dispatch is synchronous with respect to the connection: a session never
// dispatches two requests concurrently.
func stateDispatch(s *Session) stateFunc {
	req := s.pending[0]
	s.pending = s.pending[1:]

	resp := s.disp.Dispatch(req, s.connLog)

	if s.ctx.Err() != nil {
		// Cancelled mid-dispatch: the chain completed, the response is
		// discarded.
		s.log.Debug("response discarded after cancellation", "session", s.id)
		return stateClose
	}
	return s.writeState(req, resp)
}

func (s *Session) writeState(req *httpmsg.Request, resp *httpmsg.Response) stateFunc {
	return func(_ *Session) stateFunc {
		if err := Flush(s.ctx, s.conn, resp.MarshalHTTP()); err != nil {
			s.fatal("write", err)
			return stateClose
		}
		if req.CloseConnection {
			s.log.Debug("connection close requested", "session", s.id)
			return stateClose
		}
		if len(s.pending) > 0 {
			return stateDispatch
		}
		return stateParse
	}
}

// stateClose tears the session down. The decorated connection is closed
// before the raw connection it owns.
func stateClose(s *Session) stateFunc {
	if s.wrapped {
		if err := s.conn.Close(); err != nil {
			s.log.Debug("decorated connection close failed", "session", s.id, "error", err)
		}
	}
	if err := s.raw.Close(); err != nil {
		s.log.Debug("raw connection close failed", "session", s.id, "error", err)
	}
	s.parser = nil
	s.pending = nil
	return nil
}

// safeParse shields the session from parser panics; a panicking parser is a
// fatal parser error, not a process crash.
func (s *Session) safeParse() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return s.parser.Parse()
}

func safeWrap(w module.ConnectionWrapper, base module.Connection) (conn module.Connection, err error) {
	defer func() {
		if r := recover(); r != nil {
			conn, err = nil, fmt.Errorf("wrapper panicked: %v", r)
		}
	}()
	return w.Wrap(base)
}

func safeNewInstance(p module.Parser, in module.Input, log module.Logger, emit module.Emitter) (inst module.ParserInstance, err error) {
	defer func() {
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("parser factory panicked: %v", r)
		}
	}()
	inst = p.NewInstance(in, log, emit)
	if inst == nil {
		return nil, fmt.Errorf("parser factory returned nil instance")
	}
	return inst, nil
}
