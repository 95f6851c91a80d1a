// Package msgs defines the messages published by the scanner service.
package msgs

import (
	"errors"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/barscan/pkg/protocol"
	"github.com/robotalks/barscan/pkg/scanner"
)

// ScanEvent reports a decoded barcode.
type ScanEvent struct {
	ScannerID string `protobuf:"bytes,1,opt,name=scanner_id,proto3" json:"scanner_id,omitempty"`
	Seq       uint64 `protobuf:"varint,2,opt,name=seq,proto3" json:"seq,omitempty"`
	Symbology string `protobuf:"bytes,3,opt,name=symbology,proto3" json:"symbology,omitempty"`
	Data      []byte `protobuf:"bytes,4,opt,name=data,proto3" json:"data,omitempty"`
	Text      string `protobuf:"bytes,5,opt,name=text,proto3" json:"text,omitempty"`
	// Timestamp is in unix milliseconds.
	Timestamp int64 `protobuf:"varint,6,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
}

// NewScanEvent creates a ScanEvent from a barcode.
func NewScanEvent(scannerID string, seq uint64, b *scanner.DecodedBarcode) *ScanEvent {
	return &ScanEvent{
		ScannerID: scannerID,
		Seq:       seq,
		Symbology: b.Symbology.String(),
		Data:      b.Raw,
		Text:      b.Text(),
		Timestamp: b.ScannedAt.UnixNano() / 1e6,
	}
}

// ProtoMessage implements proto.Message.
func (m *ScanEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ScanEvent) Reset() { *m = ScanEvent{} }

// String implements proto.Message.
func (m *ScanEvent) String() string { return proto.CompactTextString(m) }

// CommandRequest asks the service to run a command on the scanner.
type CommandRequest struct {
	Command string   `protobuf:"bytes,1,opt,name=command,proto3" json:"command,omitempty"`
	Args    []string `protobuf:"bytes,2,rep,name=args,proto3" json:"args,omitempty"`
	// TimeoutMs overrides the default command timeout.
	TimeoutMs uint32 `protobuf:"varint,3,opt,name=timeout_ms,proto3" json:"timeout_ms,omitempty"`
	// ID is echoed in the result.
	ID string `protobuf:"bytes,4,opt,name=id,proto3" json:"id,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *CommandRequest) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandRequest) Reset() { *m = CommandRequest{} }

// String implements proto.Message.
func (m *CommandRequest) String() string { return proto.CompactTextString(m) }

// CommandResult is the reply to a CommandRequest.
type CommandResult struct {
	ID        string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Command   string `protobuf:"bytes,2,opt,name=command,proto3" json:"command,omitempty"`
	Status    uint32 `protobuf:"varint,3,opt,name=status,proto3" json:"status,omitempty"`
	Data      []byte `protobuf:"bytes,4,opt,name=data,proto3" json:"data,omitempty"`
	Value     string `protobuf:"bytes,5,opt,name=value,proto3" json:"value,omitempty"`
	Error     string `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	ErrorKind string `protobuf:"bytes,7,opt,name=error_kind,proto3" json:"error_kind,omitempty"`
}

// NewCommandResult creates the result of a finished command.
func NewCommandResult(req *CommandRequest, st protocol.Status, err error) *CommandResult {
	res := &CommandResult{
		ID:      req.ID,
		Command: req.Command,
		Status:  uint32(st.Code),
		Data:    st.Data,
	}
	if err != nil {
		var cmdErr *scanner.CommandError
		if errors.As(err, &cmdErr) {
			res.Status = uint32(cmdErr.Code)
		}
		res.Error = err.Error()
		res.ErrorKind = scanner.KindOf(err).String()
	}
	return res
}

// Failed reports whether the command failed.
func (m *CommandResult) Failed() bool {
	return m.Error != ""
}

// ProtoMessage implements proto.Message.
func (m *CommandResult) ProtoMessage() {}

// Reset implements proto.Message.
func (m *CommandResult) Reset() { *m = CommandResult{} }

// String implements proto.Message.
func (m *CommandResult) String() string { return proto.CompactTextString(m) }

// Status reports whether a scanner service is online.
type Status struct {
	ScannerID string `protobuf:"bytes,1,opt,name=scanner_id,proto3" json:"scanner_id,omitempty"`
	Online    bool   `protobuf:"varint,2,opt,name=online,proto3" json:"online,omitempty"`
	Port      string `protobuf:"bytes,3,opt,name=port,proto3" json:"port,omitempty"`
	Mode      string `protobuf:"bytes,4,opt,name=mode,proto3" json:"mode,omitempty"`
	Version   string `protobuf:"bytes,5,opt,name=version,proto3" json:"version,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Status) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Status) Reset() { *m = Status{} }

// String implements proto.Message.
func (m *Status) String() string { return proto.CompactTextString(m) }
