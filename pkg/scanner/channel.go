package scanner

import (
	"io"

	"github.com/robotalks/barscan/pkg/protocol"
)

// Channel is a byte channel connected to the scanner module.
// Read waits at most the given timeout and returns 0 bytes when nothing
// arrived. If the Channel implements io.Closer, it's closed with the Scanner.
type Channel interface {
	protocol.Reader
	Write(p []byte) (int, error)
}

// writeFull writes all of b, failing on short writes.
func writeFull(ch Channel, b []byte) error {
	for len(b) > 0 {
		n, err := ch.Write(b)
		if err != nil {
			return err
		}
		if n <= 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

func closeChannel(ch Channel) error {
	if closer, ok := ch.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
