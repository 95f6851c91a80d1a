package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var ignoredConfig = Config{Checksum: ChecksumIgnored}.WithDefaults()

func TestEncode(t *testing.T) {
	testCases := []struct {
		name   string
		conf   Config
		cmd    Command
		expect []byte
	}{
		{"trigger", ConfigC, Simple(KindTriggerOnce), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x02, 0x01}},
		{"stop", ConfigC, Simple(KindStopScan), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x02, 0x00}},
		{"uart", ConfigC, Simple(KindSetUARTMode), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x0d, 0x00}},
		{"continuous default", ConfigC, Simple(KindSetContinuousMode), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x00, 0x56}},
		{"trigger mode", ConfigC, ModifyOperation(KindSetTriggerMode, 0xd6), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x00, 0xd5}},
		{"read", ConfigC, ReadRegister(RegHardwareVersion, 1), []byte{0x7e, 0x00, 0x07, 0x01, 0x00, 0xe1, 0x01}},
		{"read 256", ConfigC, ReadRegister(0x0100, 256), []byte{0x7e, 0x00, 0x07, 0x01, 0x01, 0x00, 0x00}},
		{"write", ConfigC, WriteRegister(RegScanTimeout, 0x32), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x06, 0x32}},
		{"save", ConfigC, Simple(KindSaveSettings), []byte{0x7e, 0x00, 0x09, 0x01, 0x00, 0x00, 0x00}},
		{"factory reset", ConfigC, Simple(KindFactoryReset), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0xd9, 0x50}},
		{"ignored checksum", ignoredConfig, Simple(KindTriggerOnce), []byte{0x7e, 0x00, 0x08, 0x01, 0x00, 0x02, 0x01, 0xab, 0xcd}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewCodec(tc.conf).Encode(tc.cmd)
			require.NoError(t, err)
			require.Equal(t, tc.expect, b)
		})
	}
}

func TestEncodeCRC(t *testing.T) {
	codec := NewCodec(ConfigA)
	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			b, err := codec.Encode(Command{Kind: kind, Length: 2, Payload: []byte{0x01}})
			require.NoError(t, err)
			require.Equal(t, []byte{0x7e, 0x00}, b[:2])
			body := b[2 : len(b)-2]
			crc := CRC16(body)
			require.Equal(t, []byte{byte(crc >> 8), byte(crc)}, b[len(b)-2:])
		})
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	codec := NewCodec(ConfigA)
	testCases := []struct {
		name string
		cmd  Command
	}{
		{"write", WriteRegister(0x0010, bytes.Repeat([]byte{1}, DefaultMaxPayload+1)...)},
		{"read", ReadRegister(0x0010, MaxReadLength+1)},
		{"operation", Command{Kind: KindBeeperOn, Payload: []byte{1, 2}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := codec.Encode(tc.cmd)
			require.ErrorIs(t, err, ErrPayloadTooLarge)
			require.Nil(t, b)
		})
	}

	limited := NewCodec(Config{MaxPayload: 4})
	_, err := limited.Encode(WriteRegister(0x0010, 1, 2, 3, 4))
	require.NoError(t, err)
	_, err = limited.Encode(WriteRegister(0x0010, 1, 2, 3, 4, 5))
	require.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = codec.Encode(Command{Kind: CommandKind(100)})
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestOperationValue(t *testing.T) {
	codec := NewCodec(ConfigA)
	testCases := []struct {
		cmd    Command
		expect byte
		ok     bool
	}{
		{ModifyOperation(KindSetContinuousMode, 0xd5), 0xd6, true},
		{ModifyOperation(KindSetManualMode, 0xd7), 0xd4, true},
		{ModifyOperation(KindSetSensingMode, 0x00), 0x03, true},
		{ModifyOperation(KindBeeperOff, 0xd6), 0x96, true},
		{ModifyOperation(KindBeeperOn, 0x96), 0xd6, true},
		{ModifyOperation(KindLightOff, 0x5c), 0x50, true},
		{ModifyOperation(KindLightOn, 0x50), 0x54, true},
		{Simple(KindBeeperOff), DefaultOperation &^ OpBuzzer, true},
		{WriteRegister(RegOperation, 0x11), 0x11, true},
		{WriteRegister(RegTrigger, 0x01), 0, false},
		{Simple(KindTriggerOnce), 0, false},
	}
	for _, tc := range testCases {
		t.Run(tc.cmd.String(), func(t *testing.T) {
			val, ok := codec.OperationValue(tc.cmd)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.expect, val)
		})
	}
}

func TestDecodeAck(t *testing.T) {
	codec := NewCodec(ConfigA)

	status, err := codec.DecodeAck(Frame{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0x33, 0x31}})
	require.NoError(t, err)
	require.True(t, status.OK())
	require.Equal(t, []byte{0x00}, status.Data)

	status, err = codec.DecodeAck(Frame{Kind: FrameAck, Payload: codec.EncodeAck(Status{Code: 0x05, Data: []byte{0x6e}})})
	require.NoError(t, err)
	require.False(t, status.OK())
	require.Equal(t, byte(0x05), status.Code)
	require.Equal(t, []byte{0x6e}, status.Data)

	_, err = codec.DecodeAck(Frame{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0x33, 0x32}})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	status, err = codec.DecodeAck(Frame{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0xab, 0xcd}})
	require.NoError(t, err)
	require.True(t, status.OK())

	for _, f := range []Frame{
		{Kind: FrameBarcode, Payload: []byte("123")},
		{Kind: FrameMalformed, Payload: []byte{0x02, 0x00}},
		{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00}},
		{Kind: FrameAck, Payload: []byte{0x7e, 0x00, 0x00, 0x01, 0x00, 0x33, 0x31}},
		{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x02, 0x00, 0x33, 0x31}},
	} {
		_, err = codec.DecodeAck(f)
		require.ErrorIsf(t, err, ErrUnexpectedFrame, "frame %s", f)
	}

	// no verification without checksums.
	_, err = NewCodec(ignoredConfig).DecodeAck(Frame{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x01, 0x00, 0x12, 0x34}})
	require.NoError(t, err)
	status, err = NewCodec(ConfigC).DecodeAck(Frame{Kind: FrameAck, Payload: []byte{0x02, 0x00, 0x00, 0x01, 0x00}})
	require.NoError(t, err)
	require.True(t, status.OK())
}

func TestAckRoundTrip(t *testing.T) {
	for _, conf := range []Config{ConfigA, ConfigB, ConfigC, ignoredConfig} {
		codec := NewCodec(conf)
		for _, kind := range Kinds() {
			cmd := Command{Kind: kind, Length: 3, Payload: []byte{0x10}}
			t.Run(conf.Checksum.String()+"/"+kind.String(), func(t *testing.T) {
				frames := drain(NewDecoder(conf), codec.AckFor(cmd, 0))
				require.Len(t, frames, 1)
				status, err := codec.DecodeAck(frames[0])
				require.NoError(t, err)
				require.True(t, status.OK())
				if kind == KindReadRegister {
					require.Len(t, status.Data, 3)
				}
			})
		}
	}
}

func TestCommandKind(t *testing.T) {
	for _, kind := range Kinds() {
		parsed, err := ParseKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}
	_, err := ParseKind("self-destruct")
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.False(t, CommandKind(-1).IsValid())
}
