package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules/httpparser"
	"github.com/modserve/modserve/pkg/registry"
	"github.com/modserve/modserve/pkg/reqctx"
)

type memLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLogger) Log(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, line)
}

func (l *memLogger) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newTestRegistry(t *testing.T, extra ...func(*registry.Builder)) *registry.Registry {
	t.Helper()
	parser, err := httpparser.New(module.NewMemConf(module.FormatUndefined, nil))
	require.NoError(t, err)

	b := registry.NewBuilder().
		SetParser(parser).
		AddHandler("echo", 1, module.HandlerFunc(func(req *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.SetHeader("Content-Type", "text/plain")
			resp.Body = []byte("served " + req.Path)
			return nil
		}))
	for _, f := range extra {
		f(b)
	}
	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func startServer(t *testing.T, reg *registry.Registry) (*Server, string, context.CancelFunc) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(reg, session5ms()...)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, ln.Addr().String(), cancel
}

func session5ms() []Option {
	return []Option{WithPollInterval(200 * time.Microsecond)}
}

func TestServerServesHTTPClients(t *testing.T) {
	_, addr, _ := startServer(t, newTestRegistry(t))

	resp, err := http.Get("http://" + addr + "/hello?x=1")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "served /hello", string(body))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
}

func TestServerKeepAlive(t *testing.T) {
	_, addr, _ := startServer(t, newTestRegistry(t))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for _, path := range []string{"/one", "/two", "/three"} {
		_, err = conn.Write([]byte("GET " + path + " HTTP/1.1\r\nHost: x\r\n\r\n"))
		require.NoError(t, err)

		resp, err := http.ReadResponse(reader, nil)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, "served "+path, string(body))
	}
}

func TestServerMissReturns404(t *testing.T) {
	parser, err := httpparser.New(module.NewMemConf(module.FormatUndefined, nil))
	require.NoError(t, err)
	reg, err := registry.NewBuilder().SetParser(parser).Build()
	require.NoError(t, err)

	_, addr, _ := startServer(t, reg)

	resp, err := http.Get("http://" + addr + "/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 404, resp.StatusCode)
}

func TestServerConcurrentConnections(t *testing.T) {
	_, addr, _ := startServer(t, newTestRegistry(t))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get("http://" + addr + "/c")
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "served /c" {
				errs <- assert.AnError
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent request failed: %v", err)
	}
}

func TestServerLoggerFanoutReceivesConnectionLines(t *testing.T) {
	sink := &memLogger{}
	reg := newTestRegistry(t, func(b *registry.Builder) {
		b.AddLogger(sink)
		b.AddHandler("logs", 0, module.HandlerFunc(func(req *httpmsg.Request, _ *httpmsg.Response, _ *reqctx.Bag, log module.Logger) error {
			log.Log("handling " + req.Path)
			return nil
		}))
	})
	_, addr, _ := startServer(t, reg)

	resp, err := http.Get("http://" + addr + "/logged")
	require.NoError(t, err)
	resp.Body.Close()

	// Lines arrive through the fanout tagged with the session ID prefix.
	assert.Eventually(t, func() bool {
		for _, line := range sink.snapshot() {
			if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "handling /logged") {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestServerShutdownDrainsSessions(t *testing.T) {
	srv, addr, _ := startServer(t, newTestRegistry(t))

	resp, err := http.Get("http://" + addr + "/x")
	require.NoError(t, err)
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	if err == nil {
		// A dial may still connect before the listener close propagates,
		// but no new request should be served after shutdown.
		t.Log("dial after shutdown succeeded; listener close still propagating")
	}
}

func TestServerRejectsDoubleServe(t *testing.T) {
	srv, _, _ := startServer(t, newTestRegistry(t))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	err = srv.Serve(context.Background(), ln)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
