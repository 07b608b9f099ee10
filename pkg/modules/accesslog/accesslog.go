// Package accesslog is a built-in logger module that writes timestamped
// lines to a file or stderr. It is a reference logging sink for the logger
// fanout; every line the server or another module logs lands here.
package accesslog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this logger.
const ModuleName = "accesslog"

func init() {
	modules.RegisterLogger(ModuleName, func(conf module.Conf) (module.Logger, error) {
		return New(conf)
	})
}

// Config is the module configuration.
type Config struct {
	// Path is the log file; empty logs to stderr. The file is appended
	// to and created with 0644 when missing.
	Path string `json:"path"`
}

// Logger writes one line per Log call. Safe for concurrent use: lines from
// one connection are produced sequentially and interleave whole across
// connections.
type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

// New builds the logger from its module configuration.
func New(conf module.Conf) (*Logger, error) {
	var cfg Config
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("accesslog: conf: %w", err)
		}
	}

	var out io.Writer = os.Stderr
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("accesslog: open %s: %w", cfg.Path, err)
		}
		out = f
	}
	return &Logger{out: out}, nil
}

// NewWriter builds a logger over an arbitrary writer. Used by tests and
// embedders.
func NewWriter(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log implements module.Logger.
func (l *Logger) Log(line string) {
	stamp := time.Now().UTC().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s %s\n", stamp, line)
}
