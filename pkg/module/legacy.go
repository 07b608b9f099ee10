package module

import (
	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/reqctx"
)

// MediaPriority is one accepted media type of a legacy handler, with its
// scanning priority. Larger values scan earlier.
type MediaPriority struct {
	MediaType string
	Priority  float64
}

// LegacyHandler is the superseded first-match handler model: the first
// handler returning a non-nil response resolves the request. New modules
// should implement Handler; legacy handlers participate in the pipeline
// through LegacyAdapter.
type LegacyHandler interface {
	// Accept returns the handler's managed media types and priorities.
	// Order within the slice has no effect on scanning order.
	Accept() []MediaPriority

	// Handle resolves the request or returns (nil, nil) to pass.
	Handle(req *httpmsg.Request, log Logger) (*httpmsg.Response, error)
}

// legacyResolvedKey marks the request as resolved in the context bag so
// later legacy adapters in the same chain skip it (first match wins).
const legacyResolvedKey = "module.legacy.resolved"

// LegacyAdapter lifts a LegacyHandler into the pipeline model. The first
// adapter in a chain whose handler resolves the request copies the legacy
// response into the pipeline response; subsequent adapters pass through.
type LegacyAdapter struct {
	h LegacyHandler
}

// AdaptLegacy wraps a legacy handler for use in the pipeline.
func AdaptLegacy(h LegacyHandler) *LegacyAdapter {
	return &LegacyAdapter{h: h}
}

// Handle implements Handler.
func (a *LegacyAdapter) Handle(req *httpmsg.Request, resp *httpmsg.Response, bag *reqctx.Bag, log Logger) error {
	if _, done := bag.Get(legacyResolvedKey); done {
		return nil
	}
	legacy, err := a.h.Handle(req, log)
	if err != nil {
		return err
	}
	if legacy == nil {
		return nil
	}
	bag.Set(legacyResolvedKey, true)
	resp.Status = legacy.Status
	for name, value := range legacy.Headers() {
		resp.SetHeader(name, value)
	}
	resp.Body = legacy.Body
	return nil
}

// ScanPriority derives a pipeline priority for a legacy handler. Legacy
// priorities scan highest first while the pipeline iterates ascending, so
// the maximum accepted priority is negated.
func ScanPriority(h LegacyHandler) float64 {
	max := 0.0
	for i, mp := range h.Accept() {
		if i == 0 || mp.Priority > max {
			max = mp.Priority
		}
	}
	return -max
}
