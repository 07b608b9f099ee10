package module

import (
	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/reqctx"
)

// Input is a non-blocking readable stream.
//
// Read fills p with whatever bytes are available right now and returns the
// count. (0, nil) means no bytes are available yet; it is not an error and
// may repeat indefinitely. io.EOF means the peer closed the stream.
type Input interface {
	Read(p []byte) (int, error)
}

// Output is a non-blocking writable stream.
//
// Write pushes as many bytes of p as the stream accepts right now and
// returns the count. (0, nil) is legal and may repeat; callers must retry
// until the bytes are flushed, and must also tolerate availability never
// arriving.
type Output interface {
	Write(p []byte) (int, error)
}

// Logger is a fire-and-forget line sink.
type Logger interface {
	Log(line string)
}

// Connection is the capability union a client connection exposes: a readable
// stream, a writable stream, and a logging stream. Exactly one default
// connection exists per client socket at a time, either the raw connection or
// the wrapper's decorated connection when a wrapper module is configured.
type Connection interface {
	Input
	Output
	Logger

	// Close releases the connection. For a decorated connection this must
	// happen before the base connection it wraps is closed.
	Close() error
}

// ConnectionWrapper decorates a base connection into a new default
// connection, typically to terminate TLS.
type ConnectionWrapper interface {
	// Wrap builds the decorated connection around base. The result
	// exclusively owns base and must be closed before it. An error is
	// fatal to the session: the raw connection is closed without a
	// response.
	Wrap(base Connection) (Connection, error)
}

// Emitter receives requests as a parser completes them.
type Emitter interface {
	Emit(req *httpmsg.Request)
}

// Parser creates per-connection parser instances.
type Parser interface {
	// NewInstance binds a parser instance to a connection's input stream,
	// its logger, and the emitter parsed requests are pushed to. One
	// instance serves the whole connection; it is not recreated between
	// keep-alive requests.
	NewInstance(in Input, log Logger, emit Emitter) ParserInstance
}

// ParserInstance is a stateful, session-scoped incremental parser.
type ParserInstance interface {
	// Parse consumes whatever bytes are available on the input stream and
	// pushes zero or more completed requests to the emitter, synchronously,
	// before returning. It must not block. An error means the byte stream
	// can no longer be trusted and is fatal to the session.
	Parse() error
}

// Handler is one stage of the request pipeline. Handlers run in ascending
// priority order and mutate the response and context bag in place. Setting a
// status outside the 2xx range finalizes the response and stops the chain.
//
// A returned error (or a panic) is isolated: the response is left as the
// handler found it, the error is logged, and the chain continues.
type Handler interface {
	Handle(req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, log Logger) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, log Logger) error

// Handle calls f.
func (f HandlerFunc) Handle(req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, log Logger) error {
	return f(req, resp, bag, log)
}

// Sniffer observes request traffic without resolving it. All three
// notifications are fire-and-forget; a failing sniffer never affects the
// dispatch.
type Sniffer interface {
	// GotRequest is called for every received request.
	GotRequest(req *httpmsg.Request, log Logger)

	// GotResponse is called once a request has been resolved.
	GotResponse(req *httpmsg.Request, resp *httpmsg.Response, log Logger)

	// GotRequestMiss is called when no handler resolved the request.
	GotRequestMiss(req *httpmsg.Request, log Logger)
}
