package scanner

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/robotalks/barscan/pkg/protocol"
)

// ErrUnsolicited is reported to the Observer for frames that arrive while
// the current request expects a different kind.
var ErrUnsolicited = errors.New("unsolicited frame")

var errLate = fmt.Errorf("%w: arrived after a timeout", ErrUnsolicited)

// flushWait is how long the channel must stay quiet before a command is
// written after a timed out one.
const flushWait = 10 * time.Millisecond

// Mode is the scanning mode of the module.
type Mode int

// Modes.
const (
	// ModeUART routes decoded output to the serial port.
	ModeUART Mode = iota
	// ModeTrigger scans only on command.
	ModeTrigger
	// ModeContinuous scans continuously.
	ModeContinuous
	// ModeManual scans while the button is pressed.
	ModeManual
	// ModeSensing scans when the image changes.
	ModeSensing
)

var modes = map[Mode]struct {
	name string
	kind protocol.CommandKind
}{
	ModeUART:       {"uart", protocol.KindSetUARTMode},
	ModeTrigger:    {"trigger", protocol.KindSetTriggerMode},
	ModeContinuous: {"continuous", protocol.KindSetContinuousMode},
	ModeManual:     {"manual", protocol.KindSetManualMode},
	ModeSensing:    {"sensing", protocol.KindSetSensingMode},
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if info, ok := modes[m]; ok {
		return info.name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts a name to a Mode.
func ParseMode(name string) (Mode, error) {
	for m, info := range modes {
		if info.name == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidArgument, name)
}

// Scanner is the session with one scanner module.
// It's safe for concurrent use; requests are serialized.
type Scanner struct {
	opts    Options
	codec   *protocol.Codec
	decoder *protocol.Decoder
	state   int32

	// slot is held by the outstanding request and guards everything below.
	slot      chan struct{}
	ch        Channel
	closed    bool
	operation byte
	opKnown   bool

	// stale is set when a command timed out, its ack may still arrive.
	stale bool
}

// New creates a Scanner owning ch.
func New(ch Channel, opts ...Option) *Scanner {
	o := makeOptions(opts)
	s := &Scanner{
		opts:    o,
		codec:   protocol.NewCodec(o.Wire),
		decoder: protocol.NewDecoder(o.Wire),
		slot:    make(chan struct{}, 1),
		ch:      ch,
	}
	s.decoder.ReadChunk = o.ReadChunk
	return s
}

// Config returns the effective wire configuration.
func (s *Scanner) Config() protocol.Config {
	return s.codec.Config()
}

// State returns the state of the request slot.
func (s *Scanner) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// SendCommand writes cmd and waits for its ack.
// A non-zero status is returned without error.
func (s *Scanner) SendCommand(cmd protocol.Command, timeout time.Duration) (protocol.Status, error) {
	deadline := time.Now().Add(timeout)
	if err := s.acquire(deadline); err != nil {
		return protocol.Status{}, err
	}
	defer s.release()
	return s.exchange(cmd, deadline)
}

// ReadBarcode waits for the next barcode.
func (s *Scanner) ReadBarcode(timeout time.Duration) (*DecodedBarcode, error) {
	deadline := time.Now().Add(timeout)
	if err := s.acquire(deadline); err != nil {
		return nil, err
	}
	defer s.release()
	return s.read(deadline)
}

// TriggerAndRead triggers a single scan and waits for the barcode.
// Both steps share the timeout and no other request runs in between.
func (s *Scanner) TriggerAndRead(timeout time.Duration) (*DecodedBarcode, error) {
	deadline := time.Now().Add(timeout)
	if err := s.acquire(deadline); err != nil {
		return nil, err
	}
	defer s.release()
	if _, err := s.call(protocol.Simple(protocol.KindTriggerOnce), deadline); err != nil {
		return nil, err
	}
	return s.read(deadline)
}

// Configure switches the scanning mode.
func (s *Scanner) Configure(mode Mode, timeout time.Duration) error {
	info, ok := modes[mode]
	if !ok {
		return fmt.Errorf("%w: mode %d", ErrInvalidArgument, int(mode))
	}
	return s.modify(info.kind, timeout)
}

// Beeper turns the decode beep on or off.
func (s *Scanner) Beeper(on bool, timeout time.Duration) error {
	if on {
		return s.modify(protocol.KindBeeperOn, timeout)
	}
	return s.modify(protocol.KindBeeperOff, timeout)
}

// Light turns the illumination light on or off.
func (s *Scanner) Light(on bool, timeout time.Duration) error {
	if on {
		return s.modify(protocol.KindLightOn, timeout)
	}
	return s.modify(protocol.KindLightOff, timeout)
}

// Reattach replaces the channel, e.g. after the port was re-opened.
// The old channel is not closed. Buffered bytes are discarded.
func (s *Scanner) Reattach(ch Channel) error {
	s.slot <- struct{}{}
	defer s.release()
	if s.closed {
		return ErrClosed
	}
	s.ch = ch
	s.decoder.Reset()
	s.opKnown = false
	s.stale = false
	return nil
}

// Close waits for the outstanding request and releases the channel.
func (s *Scanner) Close() error {
	s.slot <- struct{}{}
	defer s.release()
	if s.closed {
		return nil
	}
	s.closed = true
	err := closeChannel(s.ch)
	s.ch = nil
	return err
}

func (s *Scanner) acquire(deadline time.Time) error {
	select {
	case s.slot <- struct{}{}:
	default:
		if s.opts.FailFast {
			return ErrBusy
		}
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case s.slot <- struct{}{}:
		case <-timer.C:
			return ErrTimeout
		}
	}
	if s.closed {
		s.release()
		return ErrClosed
	}
	return nil
}

func (s *Scanner) release() {
	<-s.slot
}

// request tracks one outstanding exchange for observer events.
type request struct {
	op    string
	cmd   *protocol.Command
	start time.Time
}

func (s *Scanner) emit(e Event) {
	s.opts.Observer.Observe(e)
}

func (s *Scanner) transition(r *request, state State, err error) {
	stored := StateIdle
	if state == StateAwaiting {
		stored = StateAwaiting
	}
	atomic.StoreInt32(&s.state, int32(stored))
	s.emit(Event{Kind: EventState, Op: r.op, State: state, Command: r.cmd, Err: err, Elapsed: time.Since(r.start)})
}

func (s *Scanner) skip(r *request, f protocol.Frame, reason error) {
	s.emit(Event{Kind: EventSkipped, Op: r.op, Command: r.cmd, Frame: &f, Err: reason})
}

func (s *Scanner) abort(r *request, op string, err error) error {
	chErr := &ChannelError{Op: op, Err: err}
	s.decoder.Reset()
	s.transition(r, StateAborted, chErr)
	return chErr
}

// next pulls the next frame, resolving the request as timed out or aborted
// on failure.
func (s *Scanner) next(r *request, deadline time.Time) (protocol.Frame, error) {
	f, err := s.decoder.NextFrame(s.ch, deadline)
	switch {
	case err == nil:
		s.emit(Event{Kind: EventFrame, Op: r.op, Command: r.cmd, Frame: &f})
		return f, nil
	case errors.Is(err, protocol.ErrDeadline):
		s.transition(r, StateTimedOut, ErrTimeout)
		return f, ErrTimeout
	}
	return f, s.abort(r, "read", err)
}

// exchange runs one command while the slot is held.
func (s *Scanner) exchange(cmd protocol.Command, deadline time.Time) (protocol.Status, error) {
	b, err := s.codec.Encode(cmd)
	if err != nil {
		return protocol.Status{}, err
	}
	r := &request{op: "command", cmd: &cmd, start: time.Now()}
	s.transition(r, StateAwaiting, nil)
	if s.stale {
		if err := s.flush(r, deadline); err != nil {
			return protocol.Status{}, err
		}
	}
	s.emit(Event{Kind: EventWrite, Op: r.op, Command: r.cmd, Bytes: b})
	if err := writeFull(s.ch, b); err != nil {
		return protocol.Status{}, s.abort(r, "write", err)
	}
	for {
		f, err := s.next(r, deadline)
		if err != nil {
			s.stale = errors.Is(err, ErrTimeout)
			return protocol.Status{}, err
		}
		switch f.Kind {
		case protocol.FrameBarcode:
			s.skip(r, f, ErrUnsolicited)
			continue
		case protocol.FrameMalformed:
			s.skip(r, f, protocol.ErrMalformed)
			continue
		}
		st, err := s.codec.DecodeAck(f)
		if err != nil {
			s.skip(r, f, err)
			continue
		}
		if !ackMatches(cmd, st) {
			s.skip(r, f, fmt.Errorf("%w: %d data bytes for %s", protocol.ErrUnexpectedFrame, len(st.Data), cmd))
			continue
		}
		s.track(cmd, st)
		s.transition(r, StateResolved, nil)
		return st, nil
	}
}

// flush discards what arrived since a timed out command, like its late ack,
// reading until the channel is quiet for flushWait.
func (s *Scanner) flush(r *request, deadline time.Time) error {
	buf := make([]byte, protocol.DefaultReadChunk)
	for time.Now().Before(deadline) {
		n, err := s.ch.Read(buf, flushWait)
		if n > 0 {
			s.decoder.Feed(buf[:n])
		}
		if err != nil && !os.IsTimeout(err) {
			return s.abort(r, "read", err)
		}
		if n == 0 {
			break
		}
	}
	for {
		f, ok := s.decoder.Frame()
		if !ok {
			break
		}
		s.skip(r, f, errLate)
	}
	if rest := s.decoder.Flush(); len(rest) > 0 {
		s.skip(r, protocol.Frame{Kind: protocol.FrameMalformed, Payload: rest}, errLate)
	}
	s.stale = false
	return nil
}

// call runs exchange and turns a non-zero status into CommandError.
func (s *Scanner) call(cmd protocol.Command, deadline time.Time) (protocol.Status, error) {
	st, err := s.exchange(cmd, deadline)
	if err == nil && !st.OK() {
		err = &CommandError{Command: cmd.Kind, Code: st.Code}
	}
	return st, err
}

// read waits for a barcode while the slot is held.
func (s *Scanner) read(deadline time.Time) (*DecodedBarcode, error) {
	r := &request{op: "read", start: time.Now()}
	s.transition(r, StateAwaiting, nil)
	for {
		f, err := s.next(r, deadline)
		if err != nil {
			return nil, err
		}
		switch f.Kind {
		case protocol.FrameBarcode:
			s.transition(r, StateResolved, nil)
			return decodeBarcode(f.Payload, s.codec.Config().CodeID, time.Now()), nil
		case protocol.FrameAck:
			s.skip(r, f, ErrUnsolicited)
		default:
			s.skip(r, f, protocol.ErrMalformed)
		}
	}
}

// modify runs a command rewriting the operation register, based on the
// current register value.
func (s *Scanner) modify(kind protocol.CommandKind, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := s.acquire(deadline); err != nil {
		return err
	}
	defer s.release()
	cmd := protocol.Simple(kind)
	if _, ok := s.codec.OperationValue(cmd); ok {
		current, err := s.currentOperation(deadline)
		if err != nil {
			return err
		}
		cmd = protocol.ModifyOperation(kind, current)
	}
	_, err := s.call(cmd, deadline)
	return err
}

func (s *Scanner) currentOperation(deadline time.Time) (byte, error) {
	if !s.opKnown {
		if _, err := s.call(protocol.ReadRegister(protocol.RegOperation, 1), deadline); err != nil {
			return 0, err
		}
	}
	return s.operation, nil
}

// track maintains the shadow of the operation register.
func (s *Scanner) track(cmd protocol.Command, st protocol.Status) {
	if !st.OK() {
		return
	}
	if val, ok := s.codec.OperationValue(cmd); ok {
		s.operation, s.opKnown = val, true
		return
	}
	if cmd.Kind == protocol.KindReadRegister && cmd.Address == protocol.RegOperation && len(st.Data) > 0 {
		s.operation, s.opKnown = st.Data[0], true
	}
}

// ackMatches rejects acks which can't belong to cmd. Acks carry no command
// tag, so only the data length of successful reads is checked.
func ackMatches(cmd protocol.Command, st protocol.Status) bool {
	if !st.OK() || cmd.Kind != protocol.KindReadRegister {
		return true
	}
	n := cmd.Length
	if n <= 0 {
		n = 1
	}
	return len(st.Data) == n
}
