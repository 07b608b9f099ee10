// Package tlswrap is a built-in connection wrapper that terminates TLS on
// top of the capability stream. With no certificate pair configured it
// generates a self-signed one at assembly time, for development setups.
package tlswrap

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/modserve/modserve/pkg/certs"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this wrapper.
const ModuleName = "tls"

func init() {
	modules.RegisterWrapper(ModuleName, func(conf module.Conf) (module.ConnectionWrapper, error) {
		return New(conf)
	})
}

// Config is the module configuration.
type Config struct {
	// CertFile and KeyFile are PEM paths. Both empty means a self-signed
	// certificate is generated at assembly time.
	CertFile string `json:"certFile"`
	KeyFile  string `json:"keyFile"`

	// Hosts are the names the generated certificate covers. Ignored when
	// a certificate pair is configured.
	Hosts []string `json:"hosts"`

	// HandshakeTimeout bounds the TLS handshake per connection, in
	// seconds. Default 10.
	HandshakeTimeout int `json:"handshakeTimeout"`
}

// Wrapper implements module.ConnectionWrapper.
type Wrapper struct {
	tlsConfig        *tls.Config
	handshakeTimeout time.Duration
}

// New builds the wrapper from its module configuration.
func New(conf module.Conf) (*Wrapper, error) {
	var cfg Config
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("tlswrap: conf: %w", err)
		}
	}
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.New("tlswrap: certFile and keyFile must be set together")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10
	}

	var cert tls.Certificate
	var err error
	if cfg.CertFile != "" {
		cert, err = tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tlswrap: load keypair: %w", err)
		}
	} else {
		pair, genErr := certs.NewSelfSigned(cfg.Hosts...)
		if genErr != nil {
			return nil, fmt.Errorf("tlswrap: generate certificate: %w", genErr)
		}
		cert, err = tls.X509KeyPair(pair.CertPEM, pair.KeyPEM)
		if err != nil {
			return nil, fmt.Errorf("tlswrap: assemble keypair: %w", err)
		}
	}

	return &Wrapper{
		tlsConfig:        &tls.Config{Certificates: []tls.Certificate{cert}},
		handshakeTimeout: time.Duration(cfg.HandshakeTimeout) * time.Second,
	}, nil
}

// Wrap implements module.ConnectionWrapper. The handshake runs here, before
// the decorated connection is handed back, so a client that never speaks TLS
// fails the session instead of wedging the parser.
func (w *Wrapper) Wrap(base module.Connection) (module.Connection, error) {
	stream := &streamConn{base: base}
	tc := tls.Server(stream, w.tlsConfig)

	ctx, cancel := context.WithTimeout(context.Background(), w.handshakeTimeout)
	defer cancel()
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = tc.Close()
		return nil, fmt.Errorf("tlswrap: handshake: %w", err)
	}

	return &secureConn{tc: tc, stream: stream, base: base}, nil
}

// readPollWindow is how long a secureConn read blocks before reporting no
// progress, mirroring the availability window of the raw connection.
const readPollWindow = time.Millisecond

// secureConn is the decorated connection: cleartext on the module side, TLS
// records on the base side.
type secureConn struct {
	tc     *tls.Conn
	stream *streamConn
	base   module.Connection
	closed atomic.Bool
}

// Read decrypts whatever is available. The short deadline keeps the
// non-blocking stream contract; timeouts surface as zero progress. A read
// timeout does not corrupt the TLS state, partially buffered records resume
// on the next call.
func (c *secureConn) Read(p []byte) (int, error) {
	_ = c.tc.SetReadDeadline(time.Now().Add(readPollWindow))
	n, err := c.tc.Read(p)
	if err != nil {
		if isTimeout(err) {
			return n, nil
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, io.EOF
		}
		return n, err
	}
	return n, nil
}

// Write encrypts and pushes p. Unlike reads, an interrupted TLS write leaves
// the record stream corrupt, so no deadline is set: the underlying stream
// absorbs backpressure by polling instead.
func (c *secureConn) Write(p []byte) (int, error) {
	return c.tc.Write(p)
}

// Log delegates to the base connection's logging stream.
func (c *secureConn) Log(line string) {
	c.base.Log(line)
}

// Close sends the TLS close alert and closes the base connection through the
// stream adapter. Idempotent.
func (c *secureConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.tc.Close()
}

// streamConn presents a non-blocking module stream as the blocking net.Conn
// crypto/tls expects. Reads and writes poll the base stream until progress,
// end of stream, or an expired deadline.
type streamConn struct {
	base          module.Connection
	readDeadline  atomic.Pointer[time.Time]
	writeDeadline atomic.Pointer[time.Time]
}

const streamPollInterval = 500 * time.Microsecond

func (s *streamConn) Read(p []byte) (int, error) {
	for {
		n, err := s.base.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
		if expired(s.readDeadline.Load()) {
			return 0, errDeadline
		}
		time.Sleep(streamPollInterval)
	}
}

func (s *streamConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := s.base.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			if expired(s.writeDeadline.Load()) {
				return written, errDeadline
			}
			time.Sleep(streamPollInterval)
		}
	}
	return written, nil
}

func (s *streamConn) Close() error { return s.base.Close() }

func (s *streamConn) LocalAddr() net.Addr  { return streamAddr("local") }
func (s *streamConn) RemoteAddr() net.Addr { return streamAddr("remote") }

func (s *streamConn) SetDeadline(t time.Time) error {
	s.readDeadline.Store(&t)
	s.writeDeadline.Store(&t)
	return nil
}

func (s *streamConn) SetReadDeadline(t time.Time) error {
	s.readDeadline.Store(&t)
	return nil
}

func (s *streamConn) SetWriteDeadline(t time.Time) error {
	s.writeDeadline.Store(&t)
	return nil
}

func expired(t *time.Time) bool {
	return t != nil && !t.IsZero() && time.Now().After(*t)
}

type streamAddr string

func (a streamAddr) Network() string { return "modserve" }
func (a streamAddr) String() string  { return string(a) }

// errDeadline is the timeout error streamConn reports on expired deadlines.
var errDeadline error = deadlineError{}

type deadlineError struct{}

func (deadlineError) Error() string   { return "deadline exceeded" }
func (deadlineError) Timeout() bool   { return true }
func (deadlineError) Temporary() bool { return true }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
