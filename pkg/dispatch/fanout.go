package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/logging"
	"github.com/modserve/modserve/pkg/module"
)

// LoggerFanout broadcasts a log line to every registered logger module.
// Each delivery is isolated: a panicking logger is recovered and reported on
// the operational log, and the remaining loggers still receive the line.
// Calls from one goroutine are delivered in order, which preserves a
// connection's log line order.
type LoggerFanout struct {
	loggers []module.Logger
	log     *slog.Logger
}

// NewLoggerFanout builds a fanout over loggers, reporting observer failures
// to op (logging.Nop() when nil).
func NewLoggerFanout(loggers []module.Logger, op *slog.Logger) *LoggerFanout {
	if op == nil {
		op = logging.Nop()
	}
	return &LoggerFanout{loggers: loggers, log: op}
}

// Log implements module.Logger.
func (f *LoggerFanout) Log(line string) {
	for i, l := range f.loggers {
		f.deliver(i, l, line)
	}
}

func (f *LoggerFanout) deliver(i int, l module.Logger, line string) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("logger module panicked", "index", i, "panic", fmt.Sprint(r))
		}
	}()
	l.Log(line)
}

// Scoped returns a logger that prefixes every line with a connection tag,
// keeping one connection's lines attributable after fanout.
func (f *LoggerFanout) Scoped(tag string) module.Logger {
	return &scopedLogger{fanout: f, prefix: "[" + tag + "] "}
}

type scopedLogger struct {
	fanout *LoggerFanout
	prefix string
}

func (s *scopedLogger) Log(line string) {
	s.fanout.Log(s.prefix + line)
}

// SnifferFanout broadcasts observer notifications to every registered
// sniffer with the same isolation rules as LoggerFanout.
type SnifferFanout struct {
	sniffers []module.Sniffer
	log      *slog.Logger
}

// NewSnifferFanout builds a fanout over sniffers.
func NewSnifferFanout(sniffers []module.Sniffer, op *slog.Logger) *SnifferFanout {
	if op == nil {
		op = logging.Nop()
	}
	return &SnifferFanout{sniffers: sniffers, log: op}
}

// GotRequest notifies all sniffers of a received request.
func (f *SnifferFanout) GotRequest(req *httpmsg.Request, log module.Logger) {
	for i, s := range f.sniffers {
		f.deliver(i, func() { s.GotRequest(req, log) })
	}
}

// GotResponse notifies all sniffers of a resolved request.
func (f *SnifferFanout) GotResponse(req *httpmsg.Request, resp *httpmsg.Response, log module.Logger) {
	for i, s := range f.sniffers {
		f.deliver(i, func() { s.GotResponse(req, resp, log) })
	}
}

// GotRequestMiss notifies all sniffers of an unresolved request.
func (f *SnifferFanout) GotRequestMiss(req *httpmsg.Request, log module.Logger) {
	for i, s := range f.sniffers {
		f.deliver(i, func() { s.GotRequestMiss(req, log) })
	}
}

func (f *SnifferFanout) deliver(i int, notify func()) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("sniffer module panicked", "index", i, "panic", fmt.Sprint(r))
		}
	}()
	notify()
}

// SlogSink adapts an operational slog.Logger to the module.Logger contract.
// Useful as a default logger module when none is configured.
type SlogSink struct {
	Logger *slog.Logger
}

// Log implements module.Logger.
func (s *SlogSink) Log(line string) {
	if s.Logger != nil {
		s.Logger.Info(line)
	}
}
