// Package reqlog is a built-in sniffer module that keeps a bounded
// in-memory history of dispatched traffic. The newest entries win: the
// buffer evicts oldest-first when full.
package reqlog

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this sniffer.
const ModuleName = "reqlog"

func init() {
	modules.RegisterSniffer(ModuleName, func(conf module.Conf) (module.Sniffer, error) {
		return New(conf)
	})
}

// Config is the module configuration.
type Config struct {
	// MaxEntries bounds the history. Default 1000.
	MaxEntries int `json:"maxEntries"`
}

// Entry is one recorded request outcome.
type Entry struct {
	// Timestamp is when the outcome was recorded.
	Timestamp time.Time

	// Method and Path identify the request.
	Method string
	Path   string

	// Status is the response status, zero for a miss entry.
	Status int

	// Miss reports whether no handler resolved the request.
	Miss bool
}

// Log records dispatched traffic in a circular buffer. Safe for concurrent
// use across sessions.
type Log struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// New builds the sniffer from its module configuration.
func New(conf module.Conf) (*Log, error) {
	cfg := Config{MaxEntries: 1000}
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("reqlog: conf: %w", err)
		}
		if cfg.MaxEntries <= 0 {
			cfg.MaxEntries = 1000
		}
	}
	return &Log{maxEntries: cfg.MaxEntries}, nil
}

func (l *Log) record(e Entry) {
	e.Timestamp = time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, e)
}

// GotRequest implements module.Sniffer. Only responses and misses are
// recorded; the request notification alone carries no outcome yet.
func (l *Log) GotRequest(_ *httpmsg.Request, _ module.Logger) {}

// GotResponse implements module.Sniffer.
func (l *Log) GotResponse(req *httpmsg.Request, resp *httpmsg.Response, _ module.Logger) {
	l.record(Entry{Method: req.Method.String(), Path: req.Path, Status: resp.Status})
}

// GotRequestMiss implements module.Sniffer.
func (l *Log) GotRequestMiss(req *httpmsg.Request, _ module.Logger) {
	l.record(Entry{Method: req.Method.String(), Path: req.Path, Miss: true})
}

// Entries returns a copy of the recorded history, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
