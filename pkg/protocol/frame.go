package protocol

import "fmt"

// FrameKind tags the variant of a Frame.
type FrameKind int

const (
	// FrameBarcode carries scanned data without the terminator.
	FrameBarcode FrameKind = iota
	// FrameAck carries a complete ack frame, header through checksum.
	FrameAck
	// FrameMalformed carries bytes discarded during resynchronization.
	FrameMalformed
)

// String implements fmt.Stringer.
func (k FrameKind) String() string {
	switch k {
	case FrameBarcode:
		return "barcode"
	case FrameAck:
		return "ack"
	case FrameMalformed:
		return "malformed"
	}
	return fmt.Sprintf("frame(%d)", int(k))
}

// Frame is a complete unit extracted from the byte stream.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// String implements fmt.Stringer.
func (f Frame) String() string {
	return fmt.Sprintf("%s[%d] % X", f.Kind, len(f.Payload), f.Payload)
}
