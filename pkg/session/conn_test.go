package session

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetConnZeroProgressWhenIdle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := WrapNetConn(server, nil)

	// Nothing sent yet: the deadline expires and maps to (0, nil).
	buf := make([]byte, 64)
	n, err := c.Read(buf)
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestNetConnReadsAvailableBytes(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := WrapNetConn(server, nil)

	go func() {
		_, _ = client.Write([]byte("ping"))
	}()

	buf := make([]byte, 64)
	var got []byte
	require.Eventually(t, func() bool {
		n, err := c.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
		return len(got) == 4
	}, time.Second, time.Millisecond)
	assert.Equal(t, "ping", string(got))
}

func TestNetConnEOFOnPeerClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := WrapNetConn(server, nil)
	require.NoError(t, client.Close())

	buf := make([]byte, 8)
	var err error
	require.Eventually(t, func() bool {
		_, err = c.Read(buf)
		return err != nil
	}, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, io.EOF)
}

func TestNetConnWriteZeroProgressWithoutReader(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := WrapNetConn(server, nil)

	// net.Pipe writes block until read; the deadline turns that into
	// zero progress.
	n, err := c.Write([]byte("stuck"))
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestNetConnCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := WrapNetConn(server, nil)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())

	_, err := c.Read(make([]byte, 1))
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestNetConnLogDelegatesToSink(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := &recordingSink{}
	c := WrapNetConn(server, sink)
	c.Log("line one")
	assert.Equal(t, []string{"line one"}, sink.lines)

	// A nil sink drops lines instead of panicking.
	WrapNetConn(server, nil).Log("dropped")
}

type recordingSink struct {
	lines []string
}

func (r *recordingSink) Log(line string) { r.lines = append(r.lines, line) }

func TestTrackedInputObservesProgressAndEOF(t *testing.T) {
	conn := &memConn{}
	conn.feed("abcdef", false)

	in := newTrackedInput(conn)
	buf := make([]byte, 4)

	n, err := in.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), in.takeProgress())
	assert.Zero(t, in.takeProgress(), "progress is consumed by the read")
	assert.False(t, in.closedByPeer())

	conn.feed("", true)
	_, _ = in.Read(buf) // remaining "ef"
	_, err = in.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, in.closedByPeer())
}
