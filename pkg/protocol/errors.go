package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge indicates a command payload exceeds the module limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrUnexpectedFrame indicates a frame doesn't match any known ack shape.
	ErrUnexpectedFrame = errors.New("unexpected frame")
	// ErrMalformed describes bytes discarded while resynchronizing.
	ErrMalformed = errors.New("malformed frame")
	// ErrChecksumMismatch indicates the checksum doesn't validate the content.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrUnknownCommand indicates the command kind is not defined.
	ErrUnknownCommand = errors.New("unknown command")
)

// ChecksumError carries both checksums of a corrupted frame.
type ChecksumError struct {
	Expected   uint16
	Calculated uint16
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch, received %04X calculated %04X", e.Expected, e.Calculated)
}

// Unwrap makes errors.Is(err, ErrChecksumMismatch) work.
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
