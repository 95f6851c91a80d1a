package protocol

import (
	"bytes"
	"errors"
	"os"
	"time"
)

// Reader is the read side of a byte channel with bounded waits.
// Read returns 0 and no error (or an error satisfying os.IsTimeout) when
// nothing arrived within timeout.
type Reader interface {
	Read(p []byte, timeout time.Duration) (int, error)
}

// ErrDeadline is returned by NextFrame when the deadline passes first.
var ErrDeadline = errors.New("deadline exceeded")

// DefaultReadChunk is the number of bytes requested per Read.
const DefaultReadChunk = 64

// Decoder reconstructs frames from a byte stream split at arbitrary boundaries.
// It owns only its accumulation buffer.
type Decoder struct {
	ReadChunk int

	conf Config
	buf  []byte
	rbuf []byte

	// skipping is set while the rest of an oversized frame is dropped.
	skipping bool
}

// NewDecoder creates a Decoder for the wire format.
func NewDecoder(conf Config) *Decoder {
	return &Decoder{conf: conf.WithDefaults(), ReadChunk: DefaultReadChunk}
}

// Config returns the effective wire configuration.
func (d *Decoder) Config() Config {
	return d.conf
}

// Buffered returns the number of bytes waiting for completion.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Reset drops buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.skipping = false
}

// Flush removes and returns the buffered bytes.
func (d *Decoder) Flush() []byte {
	out := d.take(len(d.buf))
	d.skipping = false
	return out
}

// Feed appends received bytes. It doesn't decide completion.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Frame removes and returns the next complete frame in the buffer.
// A frame longer than MaxFrameSize is reported once as Malformed carrying
// its first MaxFrameSize bytes, however the stream is chunked.
func (d *Decoder) Frame() (Frame, bool) {
	if d.skipping && !d.skip() {
		return Frame{}, false
	}
	if len(d.buf) == 0 {
		return Frame{}, false
	}
	term := bytes.Index(d.buf, d.conf.Terminator)
	ack := d.ackStart(term)
	switch {
	case ack > 0:
		// bytes before an ack header are line noise.
		return d.malformed(ack), true
	case ack == 0:
		return d.ackFrame()
	case term >= 0:
		if term > d.conf.MaxFrameSize {
			return d.malformed(term + len(d.conf.Terminator)), true
		}
		payload := d.take(term + len(d.conf.Terminator))
		return Frame{Kind: FrameBarcode, Payload: payload[:term]}, true
	case len(d.buf) >= d.conf.MaxFrameSize+d.guard():
		// any header or terminator starting within MaxFrameSize is complete
		// here, so the frame is oversized.
		f := Frame{Kind: FrameMalformed, Payload: d.take(d.conf.MaxFrameSize)}
		d.skipping = true
		return f, true
	}
	return Frame{}, false
}

// malformed takes n bytes as a Malformed frame, keeping at most
// MaxFrameSize of them.
func (d *Decoder) malformed(n int) Frame {
	payload := d.take(n)
	if len(payload) > d.conf.MaxFrameSize {
		payload = payload[:d.conf.MaxFrameSize]
	}
	return Frame{Kind: FrameMalformed, Payload: payload}
}

// guard is the number of bytes needed to recognize a delimiter.
func (d *Decoder) guard() int {
	if n := len(d.conf.AckHeader); n > len(d.conf.Terminator) {
		return n
	}
	return len(d.conf.Terminator)
}

// skip drops the rest of an oversized frame up to the next terminator,
// or up to an ack header. It reports whether the frame has ended.
func (d *Decoder) skip() bool {
	term := bytes.Index(d.buf, d.conf.Terminator)
	ack := d.ackStart(term)
	switch {
	case ack == 0 && len(d.buf) < len(d.conf.AckHeader):
		// a header prefix, or just noise.
		return false
	case ack >= 0:
		d.drop(ack)
	case term >= 0:
		d.drop(term + len(d.conf.Terminator))
	default:
		// keep a tail which may start a delimiter.
		if n := len(d.buf) - d.guard() + 1; n > 0 {
			d.drop(n)
		}
		return false
	}
	d.skipping = false
	return true
}

// NextFrame reads from r until a frame is complete or the deadline passes.
// Errors from r, other than timeouts, are returned unchanged.
func (d *Decoder) NextFrame(r Reader, deadline time.Time) (Frame, error) {
	if d.rbuf == nil {
		chunk := d.ReadChunk
		if chunk <= 0 {
			chunk = DefaultReadChunk
		}
		d.rbuf = make([]byte, chunk)
	}
	for {
		if f, ok := d.Frame(); ok {
			return f, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, ErrDeadline
		}
		n, err := r.Read(d.rbuf, remaining)
		if n > 0 {
			d.Feed(d.rbuf[:n])
		}
		if err != nil && !os.IsTimeout(err) {
			return Frame{}, err
		}
	}
}

// ackStart locates an ack header starting before the terminator position.
// A partial header at the end of the buffer counts, so the frame waits for
// more bytes instead of being misread as barcode data.
func (d *Decoder) ackStart(term int) int {
	hdr := d.conf.AckHeader
	limit := len(d.buf)
	if term >= 0 {
		limit = term
	}
	for i := 0; i < limit; i++ {
		if d.buf[i] != hdr[0] {
			continue
		}
		rest := d.buf[i:]
		if len(rest) >= len(hdr) {
			if bytes.Equal(rest[:len(hdr)], hdr) {
				return i
			}
			continue
		}
		if bytes.Equal(rest, hdr[:len(rest)]) {
			if i == 0 {
				return 0
			}
			// leading bytes can't be judged until the header completes.
			return -1
		}
	}
	return -1
}

// ackFrame extracts an ack frame starting at the head of the buffer.
func (d *Decoder) ackFrame() (Frame, bool) {
	hdr := len(d.conf.AckHeader)
	if len(d.buf) < hdr+2 {
		if len(d.buf) < hdr || !bytes.Equal(d.buf[:hdr], d.conf.AckHeader) {
			return d.pendingHeader()
		}
		return Frame{}, false
	}
	dataLen := int(d.buf[hdr+1])
	if dataLen == 0 {
		dataLen = MaxReadLength
	}
	size := d.conf.ackSize(dataLen)
	if len(d.buf) < size {
		return Frame{}, false
	}
	return Frame{Kind: FrameAck, Payload: d.take(size)}, true
}

// pendingHeader handles a buffer holding only a prefix of the ack header.
func (d *Decoder) pendingHeader() (Frame, bool) {
	if term := bytes.Index(d.buf, d.conf.Terminator); term >= 0 {
		payload := d.take(term + len(d.conf.Terminator))
		return Frame{Kind: FrameBarcode, Payload: payload[:term]}, true
	}
	return Frame{}, false
}

func (d *Decoder) drop(n int) {
	d.buf = d.buf[:copy(d.buf, d.buf[n:])]
}

// take removes the first n bytes and returns them in a new slice.
func (d *Decoder) take(n int) []byte {
	out := make([]byte, n)
	copy(out, d.buf[:n])
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
	return out
}
