package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/logging"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/registry"
	"github.com/modserve/modserve/pkg/reqctx"
)

// Dispatcher runs one request through the handler chain and notifies
// sniffers around it. It holds no per-request state and is shared by all
// sessions.
type Dispatcher struct {
	handlers []registry.Descriptor
	sniffers *SnifferFanout
	log      *slog.Logger
}

// NewDispatcher builds a dispatcher over the registry's handler chain and
// sniffers. op receives operational diagnostics (handler failures, misses).
func NewDispatcher(reg *registry.Registry, op *slog.Logger) *Dispatcher {
	if op == nil {
		op = logging.Nop()
	}
	return &Dispatcher{
		handlers: reg.Handlers(),
		sniffers: NewSnifferFanout(reg.Sniffers(), op),
		log:      op,
	}
}

// Dispatch produces exactly one terminal response for req.
//
// A fresh context bag is created for the dispatch and discarded with it.
// Handlers run in registry order until one sets a non-2xx status. A chain
// that exhausts with a 2xx status and an empty body is a miss and yields the
// default miss response. Handler errors and panics are logged and skipped;
// they never abort the chain.
func (d *Dispatcher) Dispatch(req *httpmsg.Request, connLog module.Logger) *httpmsg.Response {
	bag := reqctx.NewBag()

	d.sniffers.GotRequest(req, connLog)

	resp := httpmsg.NewResponse()
	for _, desc := range d.handlers {
		if err := d.runHandler(desc, req, resp, bag, connLog); err != nil {
			d.log.Warn("handler failed, continuing chain",
				"handler", desc.Name, "path", req.Path, "error", err)
			connLog.Log(fmt.Sprintf("handler %s failed: %v", desc.Name, err))
			continue
		}
		if resp.Terminal() {
			break
		}
	}

	if miss(resp) {
		d.log.Debug("request missed", "method", req.Method.String(), "path", req.Path)
		*resp = *MissResponse()
		d.sniffers.GotRequestMiss(req, connLog)
	}

	d.sniffers.GotResponse(req, resp, connLog)
	return resp
}

// runHandler invokes one handler, converting a panic into an error and
// shielding the response from partial mutation on failure.
func (d *Dispatcher) runHandler(desc registry.Descriptor, req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, connLog module.Logger) (err error) {
	// Snapshot so a failing handler leaves the response as it found it,
	// header order included.
	snapshot := resp.Clone()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if err != nil {
			*resp = *snapshot
		}
	}()

	return desc.Handler.Handle(req, resp, bag, connLog)
}

// miss reports whether the chain exhausted without resolving the request:
// still a 2xx status and no body produced.
func miss(resp *httpmsg.Response) bool {
	return !resp.Terminal() && len(resp.Body) == 0
}

// MissResponse returns the default response for an unresolved request.
func MissResponse() *httpmsg.Response {
	resp := httpmsg.NewResponse()
	resp.Status = 404
	resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte("404 not found\n")
	return resp
}
