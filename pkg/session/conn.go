package session

import (
	"errors"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/modserve/modserve/pkg/module"
)

// netConnPollWindow is how long a Read/Write on the adapter waits for the
// socket before reporting "no progress". Short enough to keep the stream
// contract effectively non-blocking.
const netConnPollWindow = time.Millisecond

// NetConn adapts a net.Conn to the non-blocking module.Connection contract
// using deadlines: a deadline expiry maps to zero-progress (0, nil), peer
// closure maps to io.EOF.
type NetConn struct {
	conn   net.Conn
	sink   module.Logger
	closed atomic.Bool
}

// WrapNetConn builds the raw connection for an accepted socket. sink is the
// logging stream associated with the connection.
func WrapNetConn(conn net.Conn, sink module.Logger) *NetConn {
	return &NetConn{conn: conn, sink: sink}
}

// Read implements module.Input.
func (c *NetConn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(netConnPollWindow))
	n, err := c.conn.Read(p)
	switch {
	case err == nil:
		return n, nil
	case isTimeout(err):
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		return n, err
	}
}

// Write implements module.Output.
func (c *NetConn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(netConnPollWindow))
	n, err := c.conn.Write(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

// Log implements module.Logger.
func (c *NetConn) Log(line string) {
	if c.sink != nil {
		c.sink.Log(line)
	}
}

// Close implements module.Connection.
func (c *NetConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *NetConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// trackedInput sits between the session's default connection and the parser
// instance. The parser owns all reads, so this is where the session observes
// progress: bytes consumed since the last check, and whether the peer closed.
// That is what lets the session tell "no data yet" apart from "peer gone".
type trackedInput struct {
	in    module.Input
	bytes atomic.Int64
	eof   atomic.Bool
}

func newTrackedInput(in module.Input) *trackedInput {
	return &trackedInput{in: in}
}

// Read implements module.Input.
func (t *trackedInput) Read(p []byte) (int, error) {
	n, err := t.in.Read(p)
	if n > 0 {
		t.bytes.Add(int64(n))
	}
	if errors.Is(err, io.EOF) {
		t.eof.Store(true)
	}
	return n, err
}

// takeProgress returns the bytes read since the previous call.
func (t *trackedInput) takeProgress() int64 {
	return t.bytes.Swap(0)
}

// closedByPeer reports whether a read has hit end of stream.
func (t *trackedInput) closedByPeer() bool {
	return t.eof.Load()
}
