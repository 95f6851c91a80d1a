package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Status is the outcome reported by an ack frame.
type Status struct {
	// Code is the vendor status code, 0 on success.
	Code byte
	Data []byte
}

// OK indicates the module accepted the command.
func (s Status) OK() bool {
	return s.Code == 0
}

// Codec maps commands to wire bytes and ack frames to Status.
// It has no state besides the configuration.
type Codec struct {
	conf Config
}

// NewCodec creates a Codec for the wire format.
func NewCodec(conf Config) *Codec {
	return &Codec{conf: conf.WithDefaults()}
}

// Config returns the effective wire configuration.
func (c *Codec) Config() Config {
	return c.conf
}

type request struct {
	fn      byte
	addr    uint16
	readLen int
	data    []byte
}

func (c *Codec) request(cmd Command) (req request, err error) {
	req.fn = fnWrite
	switch cmd.Kind {
	case KindSetUARTMode:
		req.addr, req.data = RegOutput, []byte{outputSerial}
	case KindSetContinuousMode, KindSetTriggerMode, KindSetManualMode, KindSetSensingMode,
		KindBeeperOn, KindBeeperOff, KindLightOn, KindLightOff:
		val, err := operationValue(cmd)
		if err != nil {
			return req, err
		}
		req.addr, req.data = RegOperation, []byte{val}
	case KindTriggerOnce:
		req.addr, req.data = RegTrigger, []byte{triggerStart}
	case KindStopScan:
		req.addr, req.data = RegTrigger, []byte{triggerStop}
	case KindReadRegister:
		n := cmd.Length
		if n <= 0 {
			n = 1
		}
		if n > MaxReadLength {
			return req, fmt.Errorf("%w: read length %d exceeds %d", ErrPayloadTooLarge, n, MaxReadLength)
		}
		req.fn, req.addr, req.readLen = fnRead, cmd.Address, n
	case KindWriteRegister:
		if len(cmd.Payload) > c.conf.MaxPayload {
			return req, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(cmd.Payload), c.conf.MaxPayload)
		}
		req.addr, req.data = cmd.Address, cmd.Payload
	case KindSaveSettings:
		req.fn, req.data = fnSave, []byte{saveArgument}
	case KindFactoryReset:
		req.addr, req.data = RegFactoryReset, []byte{factoryMagic}
	default:
		return req, fmt.Errorf("%w: %d", ErrUnknownCommand, int(cmd.Kind))
	}
	return req, nil
}

// Encode returns the wire bytes of a command.
func (c *Codec) Encode(cmd Command) ([]byte, error) {
	req, err := c.request(cmd)
	if err != nil {
		return nil, err
	}
	hdr := len(c.conf.CommandHeader)
	b := make([]byte, 0, hdr+5+len(req.data)+c.conf.Checksum.Size())
	b = append(b, c.conf.CommandHeader...)
	if req.fn == fnRead {
		// the length of a read is 1 (the byte holding the requested size).
		// 256 bytes are requested as 0.
		b = append(b, req.fn, 1, byte(req.addr>>8), byte(req.addr), byte(req.readLen))
	} else {
		b = append(b, req.fn, byte(len(req.data)), byte(req.addr>>8), byte(req.addr))
		b = append(b, req.data...)
	}
	return c.appendChecksum(b, hdr), nil
}

// OperationValue reports the operation register value the command writes.
// ok is false for commands not touching the operation register.
func (c *Codec) OperationValue(cmd Command) (val byte, ok bool) {
	switch cmd.Kind {
	case KindSetContinuousMode, KindSetTriggerMode, KindSetManualMode, KindSetSensingMode,
		KindBeeperOn, KindBeeperOff, KindLightOn, KindLightOff:
		v, err := operationValue(cmd)
		return v, err == nil
	case KindWriteRegister:
		if cmd.Address == RegOperation && len(cmd.Payload) > 0 {
			return cmd.Payload[0], true
		}
	}
	return 0, false
}

func operationValue(cmd Command) (byte, error) {
	val := DefaultOperation
	switch len(cmd.Payload) {
	case 0:
	case 1:
		val = cmd.Payload[0]
	default:
		return 0, fmt.Errorf("%w: %s takes 1 byte, got %d", ErrPayloadTooLarge, cmd.Kind, len(cmd.Payload))
	}
	switch cmd.Kind {
	case KindSetContinuousMode:
		val = val&^OpModeMask | OpModeContinuous
	case KindSetTriggerMode:
		val = val&^OpModeMask | OpModeCommand
	case KindSetManualMode:
		val = val&^OpModeMask | OpModeManual
	case KindSetSensingMode:
		val = val&^OpModeMask | OpModeSensing
	case KindBeeperOn:
		val |= OpBuzzer
	case KindBeeperOff:
		val &^= OpBuzzer
	case KindLightOn:
		val = val&^OpLightMask | OpLightStandard
	case KindLightOff:
		val &^= OpLightMask
	}
	return val, nil
}

// DecodeAck validates an ack frame and extracts its Status.
func (c *Codec) DecodeAck(f Frame) (Status, error) {
	if f.Kind != FrameAck {
		return Status{}, fmt.Errorf("%w: %s", ErrUnexpectedFrame, f.Kind)
	}
	p, hdr := f.Payload, len(c.conf.AckHeader)
	if len(p) < hdr+2 || !bytes.Equal(p[:hdr], c.conf.AckHeader) {
		return Status{}, fmt.Errorf("%w: bad ack header % X", ErrUnexpectedFrame, p)
	}
	dataLen := int(p[hdr+1])
	if dataLen == 0 {
		dataLen = MaxReadLength
	}
	if len(p) != c.conf.ackSize(dataLen) {
		return Status{}, fmt.Errorf("%w: ack size %d, expect %d", ErrUnexpectedFrame, len(p), c.conf.ackSize(dataLen))
	}
	body := p[hdr : hdr+2+dataLen]
	if c.conf.Checksum == ChecksumCRC16 {
		if err := VerifyCRC16(body, binary.BigEndian.Uint16(p[len(p)-2:])); err != nil {
			return Status{}, err
		}
	}
	data := make([]byte, dataLen)
	copy(data, body[2:])
	return Status{Code: body[0], Data: data}, nil
}

// EncodeAck builds an ack frame carrying the status, as the module sends it.
func (c *Codec) EncodeAck(s Status) []byte {
	hdr := len(c.conf.AckHeader)
	b := make([]byte, 0, c.conf.ackSize(len(s.Data)))
	b = append(b, c.conf.AckHeader...)
	b = append(b, s.Code, byte(len(s.Data)))
	b = append(b, s.Data...)
	return c.appendChecksum(b, hdr)
}

// AckFor builds the well-formed ack the module replies to cmd with.
// Register reads are answered with zeroed data.
func (c *Codec) AckFor(cmd Command, code byte) []byte {
	s := Status{Code: code, Data: []byte{writeAckValue}}
	if cmd.Kind == KindReadRegister {
		n := cmd.Length
		if n <= 0 {
			n = 1
		}
		s.Data = make([]byte, n)
	}
	return c.EncodeAck(s)
}

func (c *Codec) appendChecksum(b []byte, from int) []byte {
	switch c.conf.Checksum {
	case ChecksumCRC16:
		crc := CRC16(b[from:])
		b = append(b, byte(crc>>8), byte(crc))
	case ChecksumIgnored:
		b = append(b, byte(IgnoredChecksum>>8), byte(IgnoredChecksum&0xff))
	}
	return b
}
