// Package httpparser is the built-in parser module: an incremental HTTP/1.1
// request parser over a non-blocking input stream. One instance serves one
// connection and keeps its buffer across keep-alive requests, so pipelined
// requests parse in arrival order.
package httpparser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this parser.
const ModuleName = "http1"

func init() {
	modules.RegisterParser(ModuleName, func(conf module.Conf) (module.Parser, error) {
		return New(conf)
	})
}

// Parse errors. All of them are fatal to the session: once framing is lost
// the byte stream cannot be trusted.
var (
	ErrMalformedRequestLine = errors.New("httpparser: malformed request line")
	ErrMalformedHeader      = errors.New("httpparser: malformed header line")
	ErrHeaderTooLarge       = errors.New("httpparser: request head exceeds limit")
	ErrBodyTooLarge         = errors.New("httpparser: request body exceeds limit")
	ErrUnsupportedTransfer  = errors.New("httpparser: unsupported transfer encoding")
	ErrBadContentLength     = errors.New("httpparser: invalid Content-Length")
)

// Config bounds what the parser accepts.
type Config struct {
	// MaxHeadBytes caps the request line plus headers. Default 64 KiB.
	MaxHeadBytes int `json:"maxHeadBytes"`

	// MaxBodyBytes caps the request body. Default 10 MiB.
	MaxBodyBytes int `json:"maxBodyBytes"`
}

const (
	defaultMaxHeadBytes = 64 << 10
	defaultMaxBodyBytes = 10 << 20
	readChunk           = 4096
)

// Parser is the module instance registered in the catalog; it creates one
// parser instance per connection.
type Parser struct {
	cfg Config
}

// New builds a Parser from its module configuration (JSON, optional).
func New(conf module.Conf) (*Parser, error) {
	cfg := Config{MaxHeadBytes: defaultMaxHeadBytes, MaxBodyBytes: defaultMaxBodyBytes}
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("httpparser: conf: %w", err)
		}
		if cfg.MaxHeadBytes <= 0 {
			cfg.MaxHeadBytes = defaultMaxHeadBytes
		}
		if cfg.MaxBodyBytes <= 0 {
			cfg.MaxBodyBytes = defaultMaxBodyBytes
		}
	}
	return &Parser{cfg: cfg}, nil
}

// NewInstance implements module.Parser.
func (p *Parser) NewInstance(in module.Input, log module.Logger, emit module.Emitter) module.ParserInstance {
	return &instance{cfg: p.cfg, in: in, log: log, emit: emit}
}

// instance is the per-connection parser state.
type instance struct {
	cfg  Config
	in   module.Input
	log  module.Logger
	emit module.Emitter

	buf []byte

	// Body phase: head parsed, waiting for need more body bytes.
	head    *httpmsg.Request
	headRaw []byte
	need    int
}

// Parse implements module.ParserInstance: it drains whatever bytes the
// input has right now and emits every request completed by them.
func (pi *instance) Parse() error {
	if err := pi.fill(); err != nil {
		return err
	}
	for {
		progressed, err := pi.step()
		if err != nil {
			pi.log.Log("parse error: " + err.Error())
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// fill moves available input bytes into the buffer without blocking.
func (pi *instance) fill() error {
	for {
		chunk := make([]byte, readChunk)
		n, err := pi.in.Read(chunk)
		if n > 0 {
			pi.buf = append(pi.buf, chunk[:n]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Peer closed; whatever is buffered may still complete.
				return nil
			}
			return fmt.Errorf("httpparser: read: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// step tries to complete one request from the buffer. It reports whether it
// made progress (a head or a full request was consumed).
func (pi *instance) step() (bool, error) {
	if pi.head != nil {
		if len(pi.buf) < pi.need {
			return false, nil
		}
		body := make([]byte, pi.need)
		copy(body, pi.buf[:pi.need])
		pi.buf = pi.buf[pi.need:]

		req := pi.head
		req.Body = body
		req.Raw = append(pi.headRaw, body...)
		pi.head, pi.headRaw, pi.need = nil, nil, 0

		pi.emit.Emit(req)
		return true, nil
	}

	end := findHeadEnd(pi.buf)
	if end < 0 {
		if len(pi.buf) > pi.cfg.MaxHeadBytes {
			return false, ErrHeaderTooLarge
		}
		return false, nil
	}
	if end > pi.cfg.MaxHeadBytes {
		return false, ErrHeaderTooLarge
	}

	headRaw := make([]byte, end)
	copy(headRaw, pi.buf[:end])
	pi.buf = pi.buf[end:]

	req, err := parseHead(headRaw)
	if err != nil {
		return false, err
	}

	need, err := contentLength(req, pi.cfg.MaxBodyBytes)
	if err != nil {
		return false, err
	}

	if need > 0 {
		pi.head, pi.headRaw, pi.need = req, headRaw, need
		return true, nil
	}

	req.Raw = headRaw
	pi.emit.Emit(req)
	return true, nil
}

// findHeadEnd returns the index just past the blank line terminating the
// request head, or -1 when the head is still incomplete. Bare-LF line
// endings are tolerated.
func findHeadEnd(buf []byte) int {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return i + 4
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return i + 2
	}
	return -1
}

// parseHead parses the request line and headers and derives the computed
// request fields. The body is attached by the caller.
func parseHead(head []byte) (*httpmsg.Request, error) {
	text := strings.TrimSuffix(string(head), "\r\n\r\n")
	text = strings.TrimSuffix(text, "\n\n")
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, ErrMalformedRequestLine
	}

	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, lines[0])
	}
	method, err := httpmsg.ParseMethod(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrMalformedRequestLine, lines[0])
	}

	req := &httpmsg.Request{
		Lines:    lines,
		Method:   method,
		URL:      parts[1],
		Protocol: parts[2],
	}

	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ":")
		if !found || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		req.SetHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	req.Derive()
	return req, nil
}

// contentLength determines the expected body size for a parsed head.
func contentLength(req *httpmsg.Request, max int) (int, error) {
	if te, ok := req.Header("Transfer-Encoding"); ok && !strings.EqualFold(te, "identity") {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedTransfer, te)
	}
	cl, ok := req.Header("Content-Length")
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(cl))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadContentLength, cl)
	}
	if n > max {
		return 0, ErrBodyTooLarge
	}
	return n, nil
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
