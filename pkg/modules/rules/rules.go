// Package rules is a built-in pipeline handler that resolves requests by
// evaluating configured expressions against them. The first rule whose
// condition evaluates true applies its response and the evaluation stops;
// requests matching no rule pass through untouched.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
	"github.com/modserve/modserve/pkg/reqctx"
)

// ModuleName is the catalog name of this handler.
const ModuleName = "rules"

func init() {
	modules.RegisterHandler(ModuleName, func(conf module.Conf) (module.Handler, error) {
		return New(conf)
	})
}

// Rule is one condition/response pair.
type Rule struct {
	// When is the condition expression. The environment exposes method,
	// path, url, host, protocol, args and headers.
	When string `json:"when"`

	// Status is the response status to set. Default 200.
	Status int `json:"status"`

	// Headers are response headers to set.
	Headers map[string]string `json:"headers"`

	// Body is the response body.
	Body string `json:"body"`
}

// Config is the module configuration.
type Config struct {
	Rules []Rule `json:"rules"`
}

type compiledRule struct {
	rule    Rule
	program *vm.Program
}

// Handler evaluates rules in configuration order.
type Handler struct {
	rules []compiledRule
}

// New builds the handler, compiling every rule condition up front so a bad
// expression fails at assembly time, not per request.
func New(conf module.Conf) (*Handler, error) {
	var cfg Config
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("rules: conf: %w", err)
		}
	}

	h := &Handler{rules: make([]compiledRule, 0, len(cfg.Rules))}
	for i, r := range cfg.Rules {
		program, err := expr.Compile(r.When, expr.Env(ruleEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rules: rule %d: %w", i, err)
		}
		if r.Status == 0 {
			r.Status = 200
		}
		h.rules = append(h.rules, compiledRule{rule: r, program: program})
	}
	return h, nil
}

// ruleEnv is the expression environment built per request.
type ruleEnv struct {
	Method   string            `expr:"method"`
	Path     string            `expr:"path"`
	URL      string            `expr:"url"`
	Host     string            `expr:"host"`
	Protocol string            `expr:"protocol"`
	Args     map[string]string `expr:"args"`
	Headers  map[string]string `expr:"headers"`
}

// Handle implements module.Handler.
func (h *Handler) Handle(req *httpmsg.Request, resp *httpmsg.Response, _ *reqctx.Bag, log module.Logger) error {
	env := ruleEnv{
		Method:   req.Method.String(),
		Path:     req.Path,
		URL:      req.URL,
		Host:     req.Host,
		Protocol: req.Protocol,
		Args:     req.Arguments,
		Headers:  req.Headers,
	}

	for i, cr := range h.rules {
		matched, err := expr.Run(cr.program, env)
		if err != nil {
			log.Log(fmt.Sprintf("rules: rule %d evaluation failed: %v", i, err))
			continue
		}
		if ok, _ := matched.(bool); !ok {
			continue
		}

		resp.Status = cr.rule.Status
		for name, value := range cr.rule.Headers {
			resp.SetHeader(name, value)
		}
		if cr.rule.Body != "" {
			resp.Body = []byte(cr.rule.Body)
		}
		return nil
	}
	return nil
}
