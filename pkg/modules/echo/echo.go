// Package echo is a built-in diagnostic handler using the superseded
// first-match model: it resolves /echo requests with a plain-text reflection
// of the request and passes on everything else. It exists mostly to exercise
// the legacy adapter end to end.
package echo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this handler.
const ModuleName = "echo"

func init() {
	modules.RegisterLegacyHandler(ModuleName, func(module.Conf) (module.LegacyHandler, error) {
		return &Handler{}, nil
	})
}

// Handler implements module.LegacyHandler.
type Handler struct{}

// Accept implements module.LegacyHandler.
func (h *Handler) Accept() []module.MediaPriority {
	return []module.MediaPriority{{MediaType: "text/plain", Priority: 1.0}}
}

// Handle implements module.LegacyHandler.
func (h *Handler) Handle(req *httpmsg.Request, log module.Logger) (*httpmsg.Response, error) {
	if req.Path != "/echo" {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", req.Method, req.URL, req.Protocol)
	fmt.Fprintf(&b, "host: %s\n", req.Host)
	for _, key := range sortedKeys(req.Arguments) {
		fmt.Fprintf(&b, "arg %s=%s\n", key, req.Arguments[key])
	}
	if len(req.Body) > 0 {
		fmt.Fprintf(&b, "body: %s\n", req.Body)
	}

	log.Log("echo resolved " + req.URL)

	resp := httpmsg.NewResponse()
	resp.SetHeader("Content-Type", "text/plain; charset=utf-8")
	resp.Body = []byte(b.String())
	return resp, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
