package modules

import (
	"fmt"

	"github.com/modserve/modserve/pkg/config"
	"github.com/modserve/modserve/pkg/registry"
)

// Assemble builds the module registry described by cfg, constructing every
// configured module through the catalog. Handler priorities default to
// registration order when not set; legacy handlers derive theirs from their
// accepted media types.
func Assemble(cfg *config.ServerConfiguration) (*registry.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := registry.NewBuilder()

	for _, lc := range cfg.Modules.Loggers {
		conf, err := lc.ModuleConf()
		if err != nil {
			return nil, err
		}
		l, err := NewLogger(lc.Module, conf)
		if err != nil {
			return nil, fmt.Errorf("assemble logger %q: %w", lc.Module, err)
		}
		b.AddLogger(l)
	}

	if wc := cfg.Modules.Wrapper; wc != nil {
		conf, err := wc.ModuleConf()
		if err != nil {
			return nil, err
		}
		w, err := NewWrapper(wc.Module, conf)
		if err != nil {
			return nil, fmt.Errorf("assemble wrapper %q: %w", wc.Module, err)
		}
		b.SetWrapper(w)
	}

	pc := cfg.Modules.Parser
	pconf, err := pc.ModuleConf()
	if err != nil {
		return nil, err
	}
	p, err := NewParser(pc.Module, pconf)
	if err != nil {
		return nil, fmt.Errorf("assemble parser %q: %w", pc.Module, err)
	}
	b.SetParser(p)

	for i, hc := range cfg.Modules.Handlers {
		conf, err := hc.ModuleConf()
		if err != nil {
			return nil, err
		}
		h, derived, isLegacy, err := NewHandler(hc.Module, conf)
		if err != nil {
			return nil, fmt.Errorf("assemble handler %q: %w", hc.Name, err)
		}
		priority := float64(i)
		if isLegacy {
			priority = derived
		}
		if hc.Priority != nil {
			priority = *hc.Priority
		}
		b.AddHandler(hc.Name, priority, h)
	}

	for _, sc := range cfg.Modules.Sniffers {
		conf, err := sc.ModuleConf()
		if err != nil {
			return nil, err
		}
		s, err := NewSniffer(sc.Module, conf)
		if err != nil {
			return nil, fmt.Errorf("assemble sniffer %q: %w", sc.Module, err)
		}
		b.AddSniffer(s)
	}

	return b.Build()
}
