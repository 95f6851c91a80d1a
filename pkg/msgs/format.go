package msgs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang/protobuf/proto"
)

// Format is the payload encoding of messages.
type Format int

// Formats.
const (
	FormatProto Format = iota
	FormatJSON
)

// String implements fmt.Stringer.
func (f Format) String() string {
	switch f {
	case FormatProto:
		return "proto"
	case FormatJSON:
		return "json"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat converts a name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "proto", "protobuf", "pb":
		return FormatProto, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("unknown format %q", name)
}

// Marshal encodes a message.
func (f Format) Marshal(m proto.Message) ([]byte, error) {
	if f == FormatJSON {
		return json.Marshal(m)
	}
	return proto.Marshal(m)
}

// Unmarshal decodes a message.
func (f Format) Unmarshal(data []byte, m proto.Message) error {
	if f == FormatJSON {
		return json.Unmarshal(data, m)
	}
	return proto.Unmarshal(data, m)
}
