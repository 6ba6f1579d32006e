package session

import (
	"io"
	"net"
	"sync"
	"time"

	controlapi "github.com/moby/buildkit/api/services/control"
)

// streamConn adapts the attach stream's BytesMessage chunks to a
// net.Conn so the HTTP/2 server can be bound directly to it. Chunk
// boundaries carry no meaning; leftover bytes from a Recv are buffered
// for the next Read.
var _ net.Conn = (*streamConn)(nil)

type streamConn struct {
	stream controlapi.Control_SessionClient

	readBuf []byte

	wmu sync.Mutex

	emu sync.Mutex
	err error
}

func newStreamConn(stream controlapi.Control_SessionClient) *streamConn {
	return &streamConn{stream: stream}
}

func (c *streamConn) Read(p []byte) (int, error) {
	if len(c.readBuf) == 0 {
		msg, err := c.stream.Recv()
		if err != nil {
			c.setErr(err)
			return 0, err
		}
		c.readBuf = msg.Data
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *streamConn) Write(p []byte) (int, error) {
	// Send may retain the message until the transport flushes it.
	data := make([]byte, len(p))
	copy(data, p)

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.stream.Send(&controlapi.BytesMessage{Data: data}); err != nil {
		c.setErr(err)
		return 0, err
	}
	return len(p), nil
}

func (c *streamConn) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.stream.CloseSend()
}

func (c *streamConn) setErr(err error) {
	if err == io.EOF {
		return
	}
	c.emu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.emu.Unlock()
}

// Err returns the first transport error seen on the stream, if any.
// A clean EOF is not an error.
func (c *streamConn) Err() error {
	c.emu.Lock()
	defer c.emu.Unlock()
	return c.err
}

func (c *streamConn) LocalAddr() net.Addr                { return streamAddr{} }
func (c *streamConn) RemoteAddr() net.Addr               { return streamAddr{} }
func (c *streamConn) SetDeadline(t time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(t time.Time) error { return nil }

type streamAddr struct{}

func (streamAddr) Network() string { return "session" }
func (streamAddr) String() string  { return "session" }
