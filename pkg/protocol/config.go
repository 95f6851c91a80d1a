package protocol

import (
	"fmt"
	"sort"
	"strings"
)

// ChecksumMode defines how the checksum field of command and ack frames is handled.
type ChecksumMode int

const (
	// ChecksumCRC16 computes and verifies a 2-byte CRC.
	ChecksumCRC16 ChecksumMode = iota
	// ChecksumIgnored sends IgnoredChecksum and never verifies received
	// checksums. The field is still 2 bytes on the wire.
	ChecksumIgnored
	// ChecksumNone means frames carry no checksum field.
	ChecksumNone
)

// IgnoredChecksum tells the module (and us) the checksum was not calculated.
const IgnoredChecksum uint16 = 0xabcd

// Size is the number of checksum bytes on the wire.
func (m ChecksumMode) Size() int {
	if m == ChecksumNone {
		return 0
	}
	return 2
}

// String implements fmt.Stringer.
func (m ChecksumMode) String() string {
	switch m {
	case ChecksumCRC16:
		return "crc16"
	case ChecksumIgnored:
		return "ignored"
	case ChecksumNone:
		return "none"
	}
	return fmt.Sprintf("checksum(%d)", int(m))
}

// Config describes the wire format of a module revision.
type Config struct {
	// Terminator ends every barcode frame.
	Terminator []byte
	// AckHeader starts every ack frame.
	AckHeader []byte
	// CommandHeader starts every command frame.
	CommandHeader []byte
	Checksum      ChecksumMode
	// CodeID is true when barcode frames carry a one-byte Code ID prefix.
	CodeID bool
	// MaxFrameSize bounds the decoder buffer.
	MaxFrameSize int
	// MaxPayload bounds write command payloads.
	MaxPayload int
}

// Defaults for Config fields left empty.
const (
	DefaultMaxFrameSize = 8192
	DefaultMaxPayload   = 255
	// MaxReadLength is the largest register block a read command can ask for.
	MaxReadLength = 256
)

// Revision presets.
var (
	// ConfigA is the factory default: CR terminator and CRC16 checksums.
	ConfigA = Config{
		Terminator:    []byte{'\r'},
		AckHeader:     []byte{0x02, 0x00},
		CommandHeader: []byte{0x7e, 0x00},
		Checksum:      ChecksumCRC16,
	}
	// ConfigB terminates barcodes with CRLF.
	ConfigB = Config{
		Terminator:    []byte{'\r', '\n'},
		AckHeader:     []byte{0x02, 0x00},
		CommandHeader: []byte{0x7e, 0x00},
		Checksum:      ChecksumCRC16,
	}
	// ConfigC has no checksum field at all.
	ConfigC = Config{
		Terminator:    []byte{'\r'},
		AckHeader:     []byte{0x02, 0x00},
		CommandHeader: []byte{0x7e, 0x00},
		Checksum:      ChecksumNone,
	}
)

var presets = map[string]Config{
	"a": ConfigA,
	"b": ConfigB,
	"c": ConfigC,
}

// Preset looks up a revision preset by name (case insensitive).
func Preset(name string) (Config, error) {
	conf, ok := presets[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(presets))
		for n := range presets {
			names = append(names, n)
		}
		sort.Strings(names)
		return Config{}, fmt.Errorf("unknown revision %q, expect one of %s", name, strings.Join(names, ","))
	}
	return conf, nil
}

// WithDefaults fills unset fields from ConfigA and the package defaults.
func (c Config) WithDefaults() Config {
	if len(c.Terminator) == 0 {
		c.Terminator = ConfigA.Terminator
	}
	if len(c.AckHeader) == 0 {
		c.AckHeader = ConfigA.AckHeader
	}
	if len(c.CommandHeader) == 0 {
		c.CommandHeader = ConfigA.CommandHeader
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.MaxPayload <= 0 || c.MaxPayload > DefaultMaxPayload {
		c.MaxPayload = DefaultMaxPayload
	}
	return c
}

// ackSize returns the full size of an ack frame with dataLen data bytes.
func (c *Config) ackSize(dataLen int) int {
	return len(c.AckHeader) + 2 + dataLen + c.Checksum.Size()
}
