package dispatch

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/registry"
	"github.com/modserve/modserve/pkg/reqctx"
)

type nopParser struct{}

func (nopParser) NewInstance(module.Input, module.Logger, module.Emitter) module.ParserInstance {
	return nil
}

type lineRecorder struct {
	lines []string
}

func (r *lineRecorder) Log(line string) { r.lines = append(r.lines, line) }

type recordingSniffer struct {
	requests  int
	responses []int
	misses    int
}

func (s *recordingSniffer) GotRequest(*httpmsg.Request, module.Logger) { s.requests++ }
func (s *recordingSniffer) GotResponse(_ *httpmsg.Request, resp *httpmsg.Response, _ module.Logger) {
	s.responses = append(s.responses, resp.Status)
}
func (s *recordingSniffer) GotRequestMiss(*httpmsg.Request, module.Logger) { s.misses++ }

func handlerFunc(f func(req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, log module.Logger) error) module.Handler {
	return module.HandlerFunc(f)
}

func newRequest(t *testing.T, method httpmsg.Method, target string) *httpmsg.Request {
	t.Helper()
	req := &httpmsg.Request{Method: method, URL: target, Protocol: "HTTP/1.1"}
	req.Derive()
	return req
}

func buildDispatcher(t *testing.T, b *registry.Builder) *Dispatcher {
	t.Helper()
	reg, err := b.Build()
	require.NoError(t, err)
	return NewDispatcher(reg, nil)
}

func TestDispatchRunsChainInOrder(t *testing.T) {
	var order []string
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("second", 2, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			order = append(order, "second")
			resp.Body = append(resp.Body, '2')
			return nil
		})).
		AddHandler("first", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			order = append(order, "first")
			resp.Body = append(resp.Body, '1')
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, "12", string(resp.Body))
	assert.Equal(t, 200, resp.Status)
}

func TestDispatchStopsOnTerminalStatus(t *testing.T) {
	ran := false
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("deny", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Status = 403
			resp.Body = []byte("forbidden")
			return nil
		})).
		AddHandler("never", 2, handlerFunc(func(*httpmsg.Request, *httpmsg.Response, *reqctx.Bag, module.Logger) error {
			ran = true
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})

	assert.False(t, ran)
	assert.Equal(t, 403, resp.Status)
	assert.Equal(t, "forbidden", string(resp.Body))
}

func TestDispatchMissYields404(t *testing.T) {
	sniffer := &recordingSniffer{}
	b := registry.NewBuilder().SetParser(nopParser{}).AddSniffer(sniffer)

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/nothing"), &lineRecorder{})

	assert.Equal(t, 404, resp.Status)
	assert.Equal(t, "404 not found\n", string(resp.Body))
	ct, _ := resp.GetHeader("Content-Type")
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	assert.Equal(t, 1, sniffer.requests)
	assert.Equal(t, 1, sniffer.misses)
	assert.Equal(t, []int{404}, sniffer.responses)
}

func TestDispatchEmptyBodyWith2xxIsMiss(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("headers-only", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.SetHeader("X-Touched", "yes")
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})
	assert.Equal(t, 404, resp.Status)
}

func TestDispatchHandlerErrorIsIsolated(t *testing.T) {
	connLog := &lineRecorder{}
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("broken", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Status = 500
			resp.SetHeader("X-Partial", "yes")
			resp.Body = []byte("partial")
			return errors.New("boom")
		})).
		AddHandler("after", 2, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Body = []byte("recovered")
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), connLog)

	// The failing handler's mutations were rolled back and the chain went on.
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "recovered", string(resp.Body))
	_, ok := resp.GetHeader("X-Partial")
	assert.False(t, ok)
	require.NotEmpty(t, connLog.lines)
	assert.Contains(t, connLog.lines[0], "broken")
}

func TestDispatchRollbackPreservesHeaderOrder(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("sets", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.SetHeader("X-First", "1")
			resp.SetHeader("X-Second", "2")
			return nil
		})).
		AddHandler("broken", 2, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.SetHeader("X-Third", "3")
			return errors.New("boom")
		})).
		AddHandler("finishes", 3, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Body = []byte("done")
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})

	// The failed handler's header is gone and the survivors still serialize
	// in first-set order.
	_, ok := resp.GetHeader("X-Third")
	assert.False(t, ok)

	wire := string(resp.MarshalHTTP())
	first := strings.Index(wire, "X-First: 1")
	second := strings.Index(wire, "X-Second: 2")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
}

func TestDispatchHandlerPanicIsIsolated(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("panics", 1, handlerFunc(func(*httpmsg.Request, *httpmsg.Response, *reqctx.Bag, module.Logger) error {
			panic("kaboom")
		})).
		AddHandler("after", 2, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Body = []byte("still here")
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})
	assert.Equal(t, "still here", string(resp.Body))
}

func TestDispatchFreshBagPerRequest(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("stamp", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, _ module.Logger) error {
			if _, seen := bag.Get("stamp"); seen {
				resp.Status = 500
				resp.Body = []byte("stale bag")
				return nil
			}
			bag.Set("stamp", true)
			resp.Body = []byte("ok")
			return nil
		}))

	d := buildDispatcher(t, b)
	for i := 0; i < 3; i++ {
		resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, "ok", string(resp.Body))
	}
}

func TestDispatchBagSharedAlongChain(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddHandler("writer", 1, handlerFunc(func(_ *httpmsg.Request, _ *httpmsg.Response, bag *reqctx.Bag, _ module.Logger) error {
			bag.Set("user", "john")
			return nil
		})).
		AddHandler("reader", 2, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, _ module.Logger) error {
			user, _ := reqctx.Value[string](bag, "user")
			resp.Body = []byte("hello " + user)
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})
	assert.Equal(t, "hello john", string(resp.Body))
}

type firstMatch struct {
	priority float64
	path     string
	body     string
}

func (h *firstMatch) Accept() []module.MediaPriority {
	return []module.MediaPriority{{MediaType: "text/plain", Priority: h.priority}}
}

func (h *firstMatch) Handle(req *httpmsg.Request, _ module.Logger) (*httpmsg.Response, error) {
	if req.Path != h.path {
		return nil, nil
	}
	resp := httpmsg.NewResponse()
	resp.Body = []byte(h.body)
	return resp, nil
}

func TestDispatchLegacyFirstMatchWins(t *testing.T) {
	// Both handlers match /both; the higher legacy priority scans first and
	// the second adapter must skip the already-resolved request.
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddLegacyHandler("low", &firstMatch{priority: 0.2, path: "/both", body: "low"}).
		AddLegacyHandler("high", &firstMatch{priority: 0.8, path: "/both", body: "high"})

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/both"), &lineRecorder{})
	assert.Equal(t, "high", string(resp.Body))
}

func TestDispatchSnifferPanicDoesNotAffectResponse(t *testing.T) {
	b := registry.NewBuilder().SetParser(nopParser{}).
		AddSniffer(panickySniffer{}).
		AddHandler("ok", 1, handlerFunc(func(_ *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, _ module.Logger) error {
			resp.Body = []byte("fine")
			return nil
		}))

	d := buildDispatcher(t, b)
	resp := d.Dispatch(newRequest(t, httpmsg.MethodGet, "/"), &lineRecorder{})
	assert.Equal(t, "fine", string(resp.Body))
}

type panickySniffer struct{}

func (panickySniffer) GotRequest(*httpmsg.Request, module.Logger) { panic("observer down") }
func (panickySniffer) GotResponse(*httpmsg.Request, *httpmsg.Response, module.Logger) {
	panic("observer down")
}
func (panickySniffer) GotRequestMiss(*httpmsg.Request, module.Logger) { panic("observer down") }
