// Package registry holds the loaded module instances and exposes read-only,
// ordered views of them to the server core. A registry is built once before
// the first connection is accepted and never mutated afterwards, so sessions
// share it without locking.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/modserve/modserve/pkg/module"
)

// Construction errors.
var (
	ErrNoParser        = errors.New("registry: no parser module configured")
	ErrDuplicateName   = errors.New("registry: duplicate handler name")
	ErrNilModule       = errors.New("registry: nil module instance")
	ErrWrapperConflict = errors.New("registry: connection wrapper already set")
	ErrParserConflict  = errors.New("registry: parser already set")
)

// Descriptor is a loaded handler instance plus its static chain position.
type Descriptor struct {
	// Name identifies the handler in configuration and logs.
	Name string

	// Priority orders the chain: smaller runs earlier, ties keep
	// registration order.
	Priority float64

	// Handler is the instance itself.
	Handler module.Handler

	// index preserves registration order for stable tie-breaking.
	index int
}

// Registry is the immutable view of all loaded modules.
type Registry struct {
	loggers  []module.Logger
	wrapper  module.ConnectionWrapper
	parser   module.Parser
	handlers []Descriptor
	sniffers []module.Sniffer
}

// Loggers returns the logger modules. The slice must not be mutated.
func (r *Registry) Loggers() []module.Logger { return r.loggers }

// Wrapper returns the connection wrapper module, or nil when none is
// configured.
func (r *Registry) Wrapper() module.ConnectionWrapper { return r.wrapper }

// Parser returns the parser module.
func (r *Registry) Parser() module.Parser { return r.parser }

// Handlers returns the handler chain in execution order. The slice must not
// be mutated.
func (r *Registry) Handlers() []Descriptor { return r.handlers }

// Sniffers returns the sniffer modules. The slice must not be mutated.
func (r *Registry) Sniffers() []module.Sniffer { return r.sniffers }

// Builder assembles a Registry. Not safe for concurrent use; build happens
// once at startup.
type Builder struct {
	reg  Registry
	errs []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddLogger registers a logger module.
func (b *Builder) AddLogger(l module.Logger) *Builder {
	if l == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: logger", ErrNilModule))
		return b
	}
	b.reg.loggers = append(b.reg.loggers, l)
	return b
}

// SetWrapper registers the single optional connection wrapper.
func (b *Builder) SetWrapper(w module.ConnectionWrapper) *Builder {
	if w == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: wrapper", ErrNilModule))
		return b
	}
	if b.reg.wrapper != nil {
		b.errs = append(b.errs, ErrWrapperConflict)
		return b
	}
	b.reg.wrapper = w
	return b
}

// SetParser registers the single parser module.
func (b *Builder) SetParser(p module.Parser) *Builder {
	if p == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: parser", ErrNilModule))
		return b
	}
	if b.reg.parser != nil {
		b.errs = append(b.errs, ErrParserConflict)
		return b
	}
	b.reg.parser = p
	return b
}

// AddHandler registers a pipeline handler under name with the given
// priority.
func (b *Builder) AddHandler(name string, priority float64, h module.Handler) *Builder {
	if h == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: handler %q", ErrNilModule, name))
		return b
	}
	for _, d := range b.reg.handlers {
		if d.Name == name {
			b.errs = append(b.errs, fmt.Errorf("%w: %q", ErrDuplicateName, name))
			return b
		}
	}
	b.reg.handlers = append(b.reg.handlers, Descriptor{
		Name:     name,
		Priority: priority,
		Handler:  h,
		index:    len(b.reg.handlers),
	})
	return b
}

// AddLegacyHandler registers a first-match handler through the pipeline
// adapter, deriving its chain priority from its accepted media types.
func (b *Builder) AddLegacyHandler(name string, h module.LegacyHandler) *Builder {
	if h == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: handler %q", ErrNilModule, name))
		return b
	}
	return b.AddHandler(name, module.ScanPriority(h), module.AdaptLegacy(h))
}

// AddSniffer registers a sniffer module.
func (b *Builder) AddSniffer(s module.Sniffer) *Builder {
	if s == nil {
		b.errs = append(b.errs, fmt.Errorf("%w: sniffer", ErrNilModule))
		return b
	}
	b.reg.sniffers = append(b.reg.sniffers, s)
	return b
}

// Build finalizes the registry: handlers are sorted by ascending priority
// with registration order breaking ties, and the result is immutable.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	if b.reg.parser == nil {
		return nil, ErrNoParser
	}

	sort.SliceStable(b.reg.handlers, func(i, j int) bool {
		hi, hj := b.reg.handlers[i], b.reg.handlers[j]
		if hi.Priority != hj.Priority {
			return hi.Priority < hj.Priority
		}
		return hi.index < hj.index
	})

	reg := b.reg
	return &reg, nil
}

// FromProvider builds a registry out of a module provider's instances.
func FromProvider(p module.Provider) (*Registry, error) {
	b := NewBuilder()
	for _, l := range p.Loggers() {
		b.AddLogger(l)
	}
	if w := p.Wrapper(); w != nil {
		b.SetWrapper(w)
	}
	if parser := p.Parser(); parser != nil {
		b.SetParser(parser)
	}
	for _, e := range p.Handlers() {
		b.AddHandler(e.Name, e.Priority, e.Handler)
	}
	for _, s := range p.Sniffers() {
		b.AddSniffer(s)
	}
	return b.Build()
}
