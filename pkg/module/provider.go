package module

// HandlerEntry pairs a handler instance with its name and chain priority.
// Smaller priorities run earlier; ties keep registration order.
type HandlerEntry struct {
	Name     string
	Priority float64
	Handler  Handler
}

// Provider supplies already-constructed module instances to the registry
// builder. Whether the instances came from static wiring, configuration, or
// shared-library loading is outside the core's concern.
type Provider interface {
	// Loggers returns the configured logger modules.
	Loggers() []Logger

	// Wrapper returns the configured connection wrapper, or nil.
	Wrapper() ConnectionWrapper

	// Parser returns the configured parser module.
	Parser() Parser

	// Handlers returns the configured handler chain entries.
	Handlers() []HandlerEntry

	// Sniffers returns the configured sniffer modules.
	Sniffers() []Sniffer
}

// StaticProvider is a Provider assembled directly from instances.
type StaticProvider struct {
	LoggerModules  []Logger
	WrapperModule  ConnectionWrapper
	ParserModule   Parser
	HandlerEntries []HandlerEntry
	SnifferModules []Sniffer
}

// Loggers implements Provider.
func (p *StaticProvider) Loggers() []Logger { return p.LoggerModules }

// Wrapper implements Provider.
func (p *StaticProvider) Wrapper() ConnectionWrapper { return p.WrapperModule }

// Parser implements Provider.
func (p *StaticProvider) Parser() Parser { return p.ParserModule }

// Handlers implements Provider.
func (p *StaticProvider) Handlers() []HandlerEntry { return p.HandlerEntries }

// Sniffers implements Provider.
func (p *StaticProvider) Sniffers() []Sniffer { return p.SnifferModules }
