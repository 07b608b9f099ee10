package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modserve/modserve/pkg/module"
)

type panickyLogger struct{}

func (panickyLogger) Log(string) { panic("logger down") }

func TestLoggerFanoutDeliversToAll(t *testing.T) {
	a, b := &lineRecorder{}, &lineRecorder{}
	f := NewLoggerFanout([]module.Logger{a, b}, nil)

	f.Log("one")
	f.Log("two")

	assert.Equal(t, []string{"one", "two"}, a.lines)
	assert.Equal(t, []string{"one", "two"}, b.lines)
}

func TestLoggerFanoutIsolatesPanics(t *testing.T) {
	after := &lineRecorder{}
	f := NewLoggerFanout([]module.Logger{panickyLogger{}, after}, nil)

	f.Log("line")

	// The observer after the panicking one still got the line.
	assert.Equal(t, []string{"line"}, after.lines)
}

func TestScopedLoggerPrefixes(t *testing.T) {
	sink := &lineRecorder{}
	f := NewLoggerFanout([]module.Logger{sink}, nil)

	f.Scoped("ab12cd34").Log("accepted")

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "[ab12cd34] accepted", sink.lines[0])
}

func TestSnifferFanoutIsolatesPanics(t *testing.T) {
	good := &recordingSniffer{}
	f := NewSnifferFanout([]module.Sniffer{panickySniffer{}, good}, nil)

	f.GotRequest(nil, &lineRecorder{})
	f.GotRequestMiss(nil, &lineRecorder{})

	assert.Equal(t, 1, good.requests)
	assert.Equal(t, 1, good.misses)
}
