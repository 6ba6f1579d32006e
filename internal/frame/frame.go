// Package frame implements the length-prefixed message framing used on
// every sub-RPC carried inside the session tunnel: one compression flag
// byte (always zero), a big-endian uint32 payload length, then the
// payload. Messages routinely straddle the chunk boundaries of the
// outer stream, so decoding is stateful.
package frame

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxMessageSize bounds the declared length of a single framed message.
// A frame claiming more is a fatal protocol error.
const MaxMessageSize = 16 << 20

const headerLen = 5

// Encode wraps payload in the wire framing. The result is always
// headerLen+len(payload) bytes.
func Encode(payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint32(buf[1:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	return buf
}

// Decoder reassembles framed messages from arbitrarily chunked input.
// Feed bytes in as they arrive, then drain complete frames with Next.
type Decoder struct {
	buf []byte
}

// Feed appends a chunk of raw stream bytes to the reassembly buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the payload of the next complete frame. ok is false when
// the buffered bytes do not yet hold a full frame.
func (d *Decoder) Next() (payload []byte, ok bool, err error) {
	if len(d.buf) < headerLen {
		return nil, false, nil
	}
	if d.buf[0] != 0 {
		return nil, false, errors.Errorf("unsupported compression flag %d", d.buf[0])
	}
	n := int(binary.BigEndian.Uint32(d.buf[1:headerLen]))
	if n > MaxMessageSize {
		return nil, false, errors.Errorf("frame of %d bytes exceeds %d byte limit", n, MaxMessageSize)
	}
	if len(d.buf) < headerLen+n {
		return nil, false, nil
	}
	payload = make([]byte, n)
	copy(payload, d.buf[headerLen:headerLen+n])
	d.buf = d.buf[headerLen+n:]
	return payload, true, nil
}

// Buffered reports how many undecoded bytes the decoder is holding.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reader decodes a sequence of frames from an io.Reader.
type Reader struct {
	r   io.Reader
	dec Decoder
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next frame payload. It returns io.EOF only when the
// stream ends cleanly on a frame boundary; an end of stream inside a
// frame is an error.
func (r *Reader) Next() ([]byte, error) {
	for {
		payload, ok, err := r.dec.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}
		chunk := make([]byte, 32<<10)
		n, err := r.r.Read(chunk)
		if n > 0 {
			r.dec.Feed(chunk[:n])
			continue
		}
		if err == io.EOF {
			if r.dec.Buffered() > 0 {
				return nil, errors.Errorf("stream ended inside a frame (%d bytes buffered)", r.dec.Buffered())
			}
			return nil, io.EOF
		}
		if err != nil {
			return nil, err
		}
	}
}
