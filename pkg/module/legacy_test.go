package module

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/reqctx"
)

type scriptedLegacy struct {
	accept []MediaPriority
	resp   *httpmsg.Response
	err    error
	calls  int
}

func (s *scriptedLegacy) Accept() []MediaPriority { return s.accept }
func (s *scriptedLegacy) Handle(*httpmsg.Request, Logger) (*httpmsg.Response, error) {
	s.calls++
	return s.resp, s.err
}

type discardLog struct{}

func (discardLog) Log(string) {}

func TestAdaptLegacyCopiesResponse(t *testing.T) {
	legacy := httpmsg.NewResponse()
	legacy.Status = 201
	legacy.SetHeader("X-Legacy", "yes")
	legacy.Body = []byte("made it")

	a := AdaptLegacy(&scriptedLegacy{resp: legacy})
	resp := httpmsg.NewResponse()
	bag := reqctx.NewBag()

	require.NoError(t, a.Handle(&httpmsg.Request{}, resp, bag, discardLog{}))
	assert.Equal(t, 201, resp.Status)
	assert.Equal(t, "made it", string(resp.Body))
	v, _ := resp.GetHeader("X-Legacy")
	assert.Equal(t, "yes", v)
}

func TestAdaptLegacyPassThrough(t *testing.T) {
	a := AdaptLegacy(&scriptedLegacy{})
	resp := httpmsg.NewResponse()

	require.NoError(t, a.Handle(&httpmsg.Request{}, resp, reqctx.NewBag(), discardLog{}))
	assert.Equal(t, 200, resp.Status)
	assert.Empty(t, resp.Body)
}

func TestAdaptLegacyFirstMatchSkipsRest(t *testing.T) {
	winner := httpmsg.NewResponse()
	winner.Body = []byte("first")
	loser := httpmsg.NewResponse()
	loser.Body = []byte("second")

	h1 := &scriptedLegacy{resp: winner}
	h2 := &scriptedLegacy{resp: loser}

	resp := httpmsg.NewResponse()
	bag := reqctx.NewBag()
	require.NoError(t, AdaptLegacy(h1).Handle(&httpmsg.Request{}, resp, bag, discardLog{}))
	require.NoError(t, AdaptLegacy(h2).Handle(&httpmsg.Request{}, resp, bag, discardLog{}))

	assert.Equal(t, "first", string(resp.Body))
	assert.Equal(t, 1, h1.calls)
	assert.Zero(t, h2.calls, "a resolved request is not offered to later legacy handlers")
}

func TestAdaptLegacyPropagatesError(t *testing.T) {
	sentinel := errors.New("legacy broke")
	a := AdaptLegacy(&scriptedLegacy{err: sentinel})
	err := a.Handle(&httpmsg.Request{}, httpmsg.NewResponse(), reqctx.NewBag(), discardLog{})
	assert.ErrorIs(t, err, sentinel)
}

func TestScanPriority(t *testing.T) {
	h := &scriptedLegacy{accept: []MediaPriority{
		{MediaType: "text/plain", Priority: 0.3},
		{MediaType: "text/html", Priority: 0.9},
		{MediaType: "image/png", Priority: 0.1},
	}}
	// Highest legacy priority scans first in an ascending chain.
	assert.Equal(t, -0.9, ScanPriority(h))

	empty := &scriptedLegacy{}
	assert.Equal(t, 0.0, ScanPriority(empty))
}
