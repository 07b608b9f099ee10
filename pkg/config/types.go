// Package config provides the server configuration types and file loading.
package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modserve/modserve/pkg/module"
)

// Default configuration values.
const (
	DefaultAddr         = ":8080"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultParserModule = "http1"
)

// ServerConfiguration is the root configuration document.
type ServerConfiguration struct {
	// Addr is the listen address (host:port).
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int `json:"maxConnections,omitempty" yaml:"maxConnections,omitempty"`

	// LogLevel is the operational log level (debug, info, warn, error).
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// LogFormat is the operational log format (text, json).
	LogFormat string `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`

	// Modules selects and configures the plugin set.
	Modules ModulesConfig `json:"modules" yaml:"modules"`
}

// ModulesConfig selects the plugin instances the server is assembled from.
type ModulesConfig struct {
	// Wrapper is the optional single connection wrapper.
	Wrapper *ModuleConfig `json:"wrapper,omitempty" yaml:"wrapper,omitempty"`

	// Parser is the parser module. Defaults to the built-in HTTP/1.1
	// parser.
	Parser *ModuleConfig `json:"parser,omitempty" yaml:"parser,omitempty"`

	// Loggers are the logger modules, all receiving every log line.
	Loggers []ModuleConfig `json:"loggers,omitempty" yaml:"loggers,omitempty"`

	// Handlers is the request pipeline, ordered by Priority.
	Handlers []HandlerConfig `json:"handlers,omitempty" yaml:"handlers,omitempty"`

	// Sniffers are the observer modules.
	Sniffers []ModuleConfig `json:"sniffers,omitempty" yaml:"sniffers,omitempty"`
}

// ModuleConfig names a module and carries its private configuration. The
// conf block is handed to the module factory opaquely, JSON-encoded, per the
// module configuration contract.
type ModuleConfig struct {
	// Module is the registered module name (ex: "static", "rules").
	Module string `json:"module" yaml:"module"`

	// Conf is the module's own configuration block.
	Conf map[string]any `json:"conf,omitempty" yaml:"conf,omitempty"`
}

// HandlerConfig is a ModuleConfig plus a chain priority override.
type HandlerConfig struct {
	ModuleConfig `json:",inline" yaml:",inline"`

	// Name identifies this handler instance; defaults to the module name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Priority orders the chain, smaller first. Defaults to registration
	// order when omitted.
	Priority *float64 `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// DefaultServerConfiguration returns a configuration serving the built-in
// HTTP/1.1 parser with an empty handler chain (every request is a miss).
func DefaultServerConfiguration() *ServerConfiguration {
	return &ServerConfiguration{
		Addr:      DefaultAddr,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Modules: ModulesConfig{
			Parser: &ModuleConfig{Module: DefaultParserModule},
		},
	}
}

// Validation errors.
var (
	ErrHandlerNoModule = errors.New("config: handler entry missing module name")
	ErrParserNoModule  = errors.New("config: parser entry missing module name")
)

// Validate checks structural invariants and fills defaults in place.
func (c *ServerConfiguration) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Modules.Parser == nil {
		c.Modules.Parser = &ModuleConfig{Module: DefaultParserModule}
	}
	if c.Modules.Parser.Module == "" {
		return ErrParserNoModule
	}
	for i := range c.Modules.Handlers {
		h := &c.Modules.Handlers[i]
		if h.Module == "" {
			return fmt.Errorf("%w (index %d)", ErrHandlerNoModule, i)
		}
		if h.Name == "" {
			h.Name = h.Module
		}
	}
	return nil
}

// ModuleConf converts a module's conf block into the configuration entity
// handed to its factory. The block is re-encoded as JSON, the preferred
// module configuration format.
func (m *ModuleConfig) ModuleConf() (module.Conf, error) {
	if len(m.Conf) == 0 {
		return module.NewMemConf(module.FormatUndefined, nil), nil
	}
	data, err := json.Marshal(m.Conf)
	if err != nil {
		return nil, fmt.Errorf("config: module %q conf: %w", m.Module, err)
	}
	return module.NewMemConf(module.FormatJSON, data), nil
}
