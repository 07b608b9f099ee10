// Package modules maintains the catalog of module factories and assembles a
// registry from server configuration. Built-in modules register themselves
// from their package init; importing pkg/modules/builtin pulls in the whole
// built-in set.
package modules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/modserve/modserve/pkg/module"
)

// Factory signatures, one per module kind. Each receives the module's own
// configuration entity.
type (
	LoggerFactory        func(conf module.Conf) (module.Logger, error)
	WrapperFactory       func(conf module.Conf) (module.ConnectionWrapper, error)
	ParserFactory        func(conf module.Conf) (module.Parser, error)
	HandlerFactory       func(conf module.Conf) (module.Handler, error)
	LegacyHandlerFactory func(conf module.Conf) (module.LegacyHandler, error)
	SnifferFactory       func(conf module.Conf) (module.Sniffer, error)
)

// ErrUnknownModule is returned when a configured module name has no
// registered factory of the required kind.
var ErrUnknownModule = errors.New("modules: unknown module")

var (
	catalogMu        sync.RWMutex
	loggerFactories  = make(map[string]LoggerFactory)
	wrapperFactories = make(map[string]WrapperFactory)
	parserFactories  = make(map[string]ParserFactory)
	handlerFactories = make(map[string]HandlerFactory)
	legacyFactories  = make(map[string]LegacyHandlerFactory)
	snifferFactories = make(map[string]SnifferFactory)
)

// RegisterLogger adds a logger factory under name.
func RegisterLogger(name string, f LoggerFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	loggerFactories[name] = f
}

// RegisterWrapper adds a connection wrapper factory under name.
func RegisterWrapper(name string, f WrapperFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	wrapperFactories[name] = f
}

// RegisterParser adds a parser factory under name.
func RegisterParser(name string, f ParserFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	parserFactories[name] = f
}

// RegisterHandler adds a pipeline handler factory under name.
func RegisterHandler(name string, f HandlerFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	handlerFactories[name] = f
}

// RegisterLegacyHandler adds a first-match handler factory under name.
func RegisterLegacyHandler(name string, f LegacyHandlerFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	legacyFactories[name] = f
}

// RegisterSniffer adds a sniffer factory under name.
func RegisterSniffer(name string, f SnifferFactory) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	snifferFactories[name] = f
}

// NewLogger builds a logger module by name.
func NewLogger(name string, conf module.Conf) (module.Logger, error) {
	catalogMu.RLock()
	f, ok := loggerFactories[name]
	catalogMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: logger %q", ErrUnknownModule, name)
	}
	return f(conf)
}

// NewWrapper builds a connection wrapper module by name.
func NewWrapper(name string, conf module.Conf) (module.ConnectionWrapper, error) {
	catalogMu.RLock()
	f, ok := wrapperFactories[name]
	catalogMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: wrapper %q", ErrUnknownModule, name)
	}
	return f(conf)
}

// NewParser builds a parser module by name.
func NewParser(name string, conf module.Conf) (module.Parser, error) {
	catalogMu.RLock()
	f, ok := parserFactories[name]
	catalogMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: parser %q", ErrUnknownModule, name)
	}
	return f(conf)
}

// NewHandler builds a pipeline handler by name. A name registered only as a
// legacy handler is adapted transparently.
func NewHandler(name string, conf module.Conf) (module.Handler, float64, bool, error) {
	catalogMu.RLock()
	f, ok := handlerFactories[name]
	lf, legacyOK := legacyFactories[name]
	catalogMu.RUnlock()

	if ok {
		h, err := f(conf)
		return h, 0, false, err
	}
	if legacyOK {
		lh, err := lf(conf)
		if err != nil {
			return nil, 0, false, err
		}
		return module.AdaptLegacy(lh), module.ScanPriority(lh), true, nil
	}
	return nil, 0, false, fmt.Errorf("%w: handler %q", ErrUnknownModule, name)
}

// NewSniffer builds a sniffer module by name.
func NewSniffer(name string, conf module.Conf) (module.Sniffer, error) {
	catalogMu.RLock()
	f, ok := snifferFactories[name]
	catalogMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sniffer %q", ErrUnknownModule, name)
	}
	return f(conf)
}
