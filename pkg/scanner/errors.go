package scanner

import (
	"errors"
	"fmt"

	"github.com/robotalks/barscan/pkg/protocol"
)

var (
	// ErrTimeout indicates no matching frame arrived before the deadline.
	// The request may be retried.
	ErrTimeout = errors.New("timeout")
	// ErrBusy indicates another request is outstanding (fail-fast mode only).
	ErrBusy = errors.New("busy")
	// ErrClosed indicates the scanner has been closed.
	ErrClosed = errors.New("scanner closed")
	// ErrInvalidArgument indicates a setting out of the supported range.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ChannelError wraps a failure of the byte channel.
// It aborts the current request; the Scanner is usable again once a working
// channel is attached with Reattach.
type ChannelError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// CommandError wraps a non-zero status from an ack.
type CommandError struct {
	Command protocol.CommandKind
	Code    byte
}

// Error implements error.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected with status 0x%02X", e.Command, e.Code)
}

// ErrorKind is the closed set of error categories returned by the driver.
type ErrorKind int

// Error kinds.
const (
	KindNone ErrorKind = iota
	KindTimeout
	KindChannel
	KindPayloadTooLarge
	KindUnexpectedFrame
	KindMalformed
	KindChecksumMismatch
	KindBusy
	KindClosed
	KindRejected
	KindInvalidArgument
	KindOther
)

var errorKindNames = map[ErrorKind]string{
	KindNone:             "none",
	KindTimeout:          "timeout",
	KindChannel:          "channel",
	KindPayloadTooLarge:  "payload-too-large",
	KindUnexpectedFrame:  "unexpected-frame",
	KindMalformed:        "malformed",
	KindChecksumMismatch: "checksum-mismatch",
	KindBusy:             "busy",
	KindClosed:           "closed",
	KindRejected:         "rejected",
	KindInvalidArgument:  "invalid-argument",
	KindOther:            "other",
}

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	if s, ok := errorKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindOf classifies an error returned by this package.
func KindOf(err error) ErrorKind {
	var chErr *ChannelError
	var cmdErr *CommandError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &chErr):
		return KindChannel
	case errors.As(err, &cmdErr):
		return KindRejected
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrClosed):
		return KindClosed
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, protocol.ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, protocol.ErrChecksumMismatch):
		return KindChecksumMismatch
	case errors.Is(err, protocol.ErrUnexpectedFrame):
		return KindUnexpectedFrame
	case errors.Is(err, protocol.ErrMalformed):
		return KindMalformed
	}
	return KindOther
}
