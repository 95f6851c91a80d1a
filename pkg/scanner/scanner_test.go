package scanner

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/barscan/pkg/protocol"
	"github.com/robotalks/barscan/pkg/scanner/scannertest"
)

type recorder struct {
	lock   sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) skipped() (errs []error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.events {
		if e.Kind == EventSkipped {
			errs = append(errs, e.Err)
		}
	}
	return
}

func (r *recorder) states() (states []State) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, e := range r.events {
		if e.Kind == EventState {
			states = append(states, e.State)
		}
	}
	return
}

var testConfigs = []struct {
	name string
	conf protocol.Config
}{
	{"crc16", protocol.ConfigA},
	{"no checksum", protocol.ConfigC},
}

func newTestScanner(conf protocol.Config, opts ...Option) (*Scanner, *scannertest.Device, *recorder) {
	dev := scannertest.NewDevice(conf)
	rec := &recorder{}
	opts = append([]Option{WithConfig(conf), WithObserver(rec)}, opts...)
	return New(dev, opts...), dev, rec
}

func TestReadBarcode(t *testing.T) {
	for _, tc := range testConfigs {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, rec := newTestScanner(tc.conf)
			dev.Inject([]byte("4901234567890\r"))
			b, err := s.ReadBarcode(time.Second)
			require.NoError(t, err)
			require.Equal(t, "4901234567890", b.Text())
			require.Equal(t, SymbologyUnknown, b.Symbology)
			require.False(t, b.ScannedAt.IsZero())
			require.Equal(t, StateIdle, s.State())
			require.Equal(t, []State{StateAwaiting, StateResolved}, rec.states())
		})
	}
}

func TestReadBarcodeSkipsAcks(t *testing.T) {
	s, dev, rec := newTestScanner(protocol.ConfigA)
	codec := protocol.NewCodec(protocol.ConfigA)
	dev.Inject(codec.AckFor(protocol.Simple(protocol.KindTriggerOnce), 0))
	dev.InjectBarcode("line1\nline2")
	b, err := s.ReadBarcode(time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"line1", "line2"}, b.Lines())
	errs := rec.skipped()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrUnsolicited)
}

func TestReadBarcodeCodeID(t *testing.T) {
	conf := protocol.ConfigA
	conf.CodeID = true
	s, dev, _ := newTestScanner(conf)
	dev.Inject(append([]byte{0x64}, "4901234567890\r"...))
	dev.Inject([]byte("\r"))
	b, err := s.ReadBarcode(time.Second)
	require.NoError(t, err)
	require.Equal(t, EAN13, b.Symbology)
	require.Equal(t, []byte("4901234567890"), b.Raw)

	b, err = s.ReadBarcode(time.Second)
	require.NoError(t, err)
	require.Equal(t, SymbologyUnknown, b.Symbology)
	require.Empty(t, b.Raw)
}

func TestSendCommand(t *testing.T) {
	for _, tc := range testConfigs {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, rec := newTestScanner(tc.conf)
			// a stale barcode, then a line glitch ahead of the ack.
			dev.InjectBarcode("123")
			dev.Inject([]byte{0x55, 0xaa, 0x13})
			st, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), time.Second)
			require.NoError(t, err)
			require.True(t, st.OK())

			reqs := dev.Requests()
			require.Len(t, reqs, 1)
			require.Equal(t, scannertest.Request{Fn: scannertest.FnWrite, Addr: protocol.RegTrigger, Data: []byte{1}}, reqs[0])

			errs := rec.skipped()
			require.Len(t, errs, 2)
			require.ErrorIs(t, errs[0], ErrUnsolicited)
			require.ErrorIs(t, errs[1], protocol.ErrMalformed)
			require.Equal(t, StateIdle, s.State())
		})
	}
}

func TestSendCommandSkipsCorruptedAck(t *testing.T) {
	s, dev, rec := newTestScanner(protocol.ConfigA)
	codec := protocol.NewCodec(protocol.ConfigA)
	ack := codec.EncodeAck(protocol.Status{Code: 0, Data: []byte{0}})
	ack[len(ack)-1] ^= 0xff
	dev.Inject(ack)
	// a read ack with the wrong length doesn't belong to the request.
	dev.Inject(codec.EncodeAck(protocol.Status{Data: []byte{1, 2}}))
	dev.Registers[protocol.RegHardwareVersion] = 0x6e

	st, err := s.SendCommand(protocol.ReadRegister(protocol.RegHardwareVersion, 1), time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0x6e}, st.Data)
	errs := rec.skipped()
	require.Len(t, errs, 2)
	require.ErrorIs(t, errs[0], protocol.ErrChecksumMismatch)
	require.ErrorIs(t, errs[1], protocol.ErrUnexpectedFrame)
}

func TestSendCommandStatus(t *testing.T) {
	s, dev, _ := newTestScanner(protocol.ConfigA)
	dev.Status = 0x05
	st, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), time.Second)
	require.NoError(t, err)
	require.False(t, st.OK())
	require.Equal(t, byte(0x05), st.Code)

	err = s.Configure(ModeUART, time.Second)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, byte(0x05), cmdErr.Code)
	require.Equal(t, protocol.KindSetUARTMode, cmdErr.Command)
	require.Equal(t, KindRejected, KindOf(err))
}

func TestTimeout(t *testing.T) {
	for _, tc := range testConfigs {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, rec := newTestScanner(tc.conf)
			dev.Silent = true

			start := time.Now()
			_, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), 200*time.Millisecond)
			elapsed := time.Since(start)
			require.ErrorIs(t, err, ErrTimeout)
			require.Equal(t, KindTimeout, KindOf(err))
			require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
			require.Less(t, elapsed, time.Second)
			require.Equal(t, StateIdle, s.State())
			require.Equal(t, []State{StateAwaiting, StateTimedOut}, rec.states())

			start = time.Now()
			_, err = s.ReadBarcode(200 * time.Millisecond)
			require.ErrorIs(t, err, ErrTimeout)
			require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

			// not retried.
			require.Len(t, dev.Requests(), 1)
		})
	}
}

func TestLateAckAfterTimeout(t *testing.T) {
	for _, tc := range testConfigs {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, rec := newTestScanner(tc.conf)
			codec := protocol.NewCodec(tc.conf)
			dev.Silent = true
			_, err := s.HardwareVersion(50 * time.Millisecond)
			require.ErrorIs(t, err, ErrTimeout)

			// the first ack shows up once the command gave up.
			dev.Inject(codec.EncodeAck(protocol.Status{Data: []byte{0x6e}}))
			dev.Registers[protocol.RegSoftwareVersion] = 0x78
			dev.Silent = false

			ver, err := s.SoftwareVersion(time.Second)
			require.NoError(t, err)
			require.Equal(t, "V1.20", ver)
			errs := rec.skipped()
			require.Len(t, errs, 1)
			require.ErrorIs(t, errs[0], ErrUnsolicited)

			// nothing is left over, the next command goes straight out.
			ver, err = s.HardwareVersion(time.Second)
			require.NoError(t, err)
			require.Equal(t, "V0.00", ver)
			require.Len(t, rec.skipped(), 1)
			require.Len(t, dev.Requests(), 3)
		})
	}
}

func TestLateAckPartial(t *testing.T) {
	s, dev, rec := newTestScanner(protocol.ConfigA)
	codec := protocol.NewCodec(protocol.ConfigA)
	dev.Silent = true
	_, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	// a truncated ack must not swallow the start of the next one.
	ack := codec.EncodeAck(protocol.Status{Data: []byte{0}})
	dev.Inject(ack[:3])
	dev.Silent = false
	st, err := s.SendCommand(protocol.Simple(protocol.KindStopScan), time.Second)
	require.NoError(t, err)
	require.True(t, st.OK())
	errs := rec.skipped()
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrUnsolicited)
}

func TestChannelError(t *testing.T) {
	s, dev, rec := newTestScanner(protocol.ConfigA)
	unplugged := errors.New("unplugged")
	dev.FailWrites(unplugged)

	_, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), time.Second)
	var chErr *ChannelError
	require.True(t, errors.As(err, &chErr))
	require.Equal(t, "write", chErr.Op)
	require.ErrorIs(t, err, unplugged)
	require.Equal(t, KindChannel, KindOf(err))
	require.Equal(t, []State{StateAwaiting, StateAborted}, rec.states())

	dev.FailReads(unplugged)
	start := time.Now()
	_, err = s.ReadBarcode(time.Second)
	require.True(t, errors.As(err, &chErr))
	require.Equal(t, "read", chErr.Op)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	fresh := scannertest.NewDevice(protocol.ConfigA)
	require.NoError(t, s.Reattach(fresh))
	fresh.InjectBarcode("OK")
	b, err := s.ReadBarcode(time.Second)
	require.NoError(t, err)
	require.Equal(t, "OK", b.Text())
	require.False(t, dev.Closed())
}

func TestTriggerAndRead(t *testing.T) {
	for _, tc := range testConfigs {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, _ := newTestScanner(tc.conf)
			dev.OnTrigger = func() []byte { return []byte("4901234567890\r") }
			b, err := s.TriggerAndRead(time.Second)
			require.NoError(t, err)
			require.Equal(t, "4901234567890", b.Text())

			dev.OnTrigger = nil
			start := time.Now()
			_, err = s.TriggerAndRead(200 * time.Millisecond)
			require.ErrorIs(t, err, ErrTimeout)
			require.Less(t, time.Since(start), time.Second)
		})
	}
}

func TestConcurrentRequests(t *testing.T) {
	s, dev, _ := newTestScanner(protocol.ConfigA)
	var count int
	dev.OnTrigger = func() []byte {
		count++
		return []byte("SCAN\r")
	}

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := s.TriggerAndRead(5 * time.Second)
			if err == nil && b.Text() != "SCAN" {
				err = errors.New("unexpected barcode " + b.Text())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, callers, count)
	require.Zero(t, dev.Garbage())
	trigger, err := protocol.NewCodec(protocol.ConfigA).Encode(protocol.Simple(protocol.KindTriggerOnce))
	require.NoError(t, err)
	writes := dev.Writes()
	require.Len(t, writes, callers)
	for _, w := range writes {
		require.True(t, bytes.Equal(trigger, w))
	}
}

func TestBusy(t *testing.T) {
	testCases := []struct {
		name   string
		opts   []Option
		expect error
	}{
		{"fail fast", []Option{WithFailFast()}, ErrBusy},
		{"wait", nil, ErrTimeout},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, dev, _ := newTestScanner(protocol.ConfigA, tc.opts...)
			dev.Silent = true
			done := make(chan error, 1)
			go func() {
				_, err := s.SendCommand(protocol.Simple(protocol.KindTriggerOnce), 500*time.Millisecond)
				done <- err
			}()
			require.Eventually(t, func() bool { return s.State() == StateAwaiting }, time.Second, time.Millisecond)

			start := time.Now()
			_, err := s.SendCommand(protocol.Simple(protocol.KindStopScan), 50*time.Millisecond)
			require.ErrorIs(t, err, tc.expect)
			require.Less(t, time.Since(start), 400*time.Millisecond)
			require.Len(t, dev.Requests(), 1)
			require.ErrorIs(t, <-done, ErrTimeout)
		})
	}
}

func TestConfigure(t *testing.T) {
	s, dev, _ := newTestScanner(protocol.ConfigA)
	dev.Registers[protocol.RegOperation] = 0xd4

	require.NoError(t, s.Configure(ModeContinuous, time.Second))
	require.Equal(t, byte(0xd6), dev.Register(protocol.RegOperation))
	reqs := dev.Requests()
	require.Len(t, reqs, 2)
	require.Equal(t, scannertest.FnRead, reqs[0].Fn)
	require.Equal(t, protocol.RegOperation, reqs[0].Addr)

	// the shadow is used from now on.
	require.NoError(t, s.Beeper(false, time.Second))
	require.Equal(t, byte(0x96), dev.Register(protocol.RegOperation))
	require.NoError(t, s.Light(false, time.Second))
	require.Equal(t, byte(0x92), dev.Register(protocol.RegOperation))
	require.NoError(t, s.Configure(ModeTrigger, time.Second))
	require.Equal(t, byte(0x91), dev.Register(protocol.RegOperation))
	require.Len(t, dev.Requests(), 5)

	require.NoError(t, s.Configure(ModeUART, time.Second))
	require.Equal(t, byte(0), dev.Register(protocol.RegOutput))

	require.ErrorIs(t, s.Configure(Mode(42), time.Second), ErrInvalidArgument)

	for _, m := range []Mode{ModeUART, ModeTrigger, ModeContinuous, ModeManual, ModeSensing} {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	s, dev, _ := newTestScanner(protocol.ConfigA)
	_, err := s.SendCommand(protocol.WriteRegister(0x0010, make([]byte, 256)...), time.Second)
	require.ErrorIs(t, err, protocol.ErrPayloadTooLarge)
	require.Equal(t, KindPayloadTooLarge, KindOf(err))
	require.Empty(t, dev.Writes())
}

func TestClose(t *testing.T) {
	s, dev, _ := newTestScanner(protocol.ConfigA)
	require.NoError(t, s.Close())
	require.True(t, dev.Closed())
	require.NoError(t, s.Close())

	_, err := s.ReadBarcode(time.Second)
	require.ErrorIs(t, err, ErrClosed)
	require.Equal(t, KindClosed, KindOf(err))
	require.ErrorIs(t, s.Reattach(dev), ErrClosed)
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		err    error
		expect ErrorKind
	}{
		{nil, KindNone},
		{ErrTimeout, KindTimeout},
		{ErrBusy, KindBusy},
		{&ChannelError{Op: "read", Err: ErrTimeout}, KindChannel},
		{&CommandError{Code: 1}, KindRejected},
		{&protocol.ChecksumError{}, KindChecksumMismatch},
		{protocol.ErrUnexpectedFrame, KindUnexpectedFrame},
		{protocol.ErrMalformed, KindMalformed},
		{errors.New("other"), KindOther},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expect, KindOf(tc.err), "%v", tc.err)
	}
}
