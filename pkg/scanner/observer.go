package scanner

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/barscan/pkg/protocol"
)

// State is the state of the request slot.
type State int

// States of a request.
const (
	StateIdle State = iota
	StateAwaiting
	StateResolved
	StateTimedOut
	StateAborted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaiting:
		return "awaiting"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed-out"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// EventKind identifies what an Event reports.
type EventKind int

// Event kinds.
const (
	// EventState reports a state transition of the current request.
	EventState EventKind = iota
	// EventWrite reports bytes written to the channel.
	EventWrite
	// EventFrame reports a frame pulled from the decoder.
	EventFrame
	// EventSkipped reports a frame absorbed as noise, with the reason in Err.
	EventSkipped
)

// Event is emitted to the Observer while a request runs.
type Event struct {
	Kind    EventKind
	Op      string
	State   State
	Command *protocol.Command
	Frame   *protocol.Frame
	Bytes   []byte
	Err     error
	Elapsed time.Duration
}

// Observer receives driver events. It is called synchronously while the
// request slot is held and must not call back into the Scanner.
type Observer interface {
	Observe(Event)
}

// ObserveFunc is the func form of Observer.
type ObserveFunc func(Event)

// Observe implements Observer.
func (f ObserveFunc) Observe(e Event) {
	f(e)
}

// Observers fans events out to multiple observers.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(e Event) {
	for _, observer := range o {
		observer.Observe(e)
	}
}

// NopObserver drops all events.
var NopObserver = ObserveFunc(func(Event) {})

// LogObserver logs events with glog.
// Frames and outcomes are logged at V(2), written bytes at V(4).
type LogObserver struct {
	Name string
}

// Observe implements Observer.
func (o LogObserver) Observe(e Event) {
	switch e.Kind {
	case EventWrite:
		glog.V(4).Infof("%sWRITE %d bytes: % X", o.prefix(), len(e.Bytes), e.Bytes)
	case EventFrame:
		glog.V(2).Infof("%sREAD %s", o.prefix(), e.Frame)
	case EventSkipped:
		if errors.Is(e.Err, protocol.ErrChecksumMismatch) {
			glog.Warningf("%s%s: dropped corrupted frame %s: %v", o.prefix(), e.Op, e.Frame, e.Err)
		} else {
			glog.V(3).Infof("%s%s: skipped %s: %v", o.prefix(), e.Op, e.Frame, e.Err)
		}
	case EventState:
		switch e.State {
		case StateAwaiting:
			glog.V(3).Infof("%s%s%s awaiting", o.prefix(), e.Op, commandSuffix(e.Command))
		case StateResolved:
			glog.V(2).Infof("%s%s%s resolved in %s", o.prefix(), e.Op, commandSuffix(e.Command), e.Elapsed)
		case StateTimedOut:
			glog.V(2).Infof("%s%s%s timed out after %s", o.prefix(), e.Op, commandSuffix(e.Command), e.Elapsed)
		case StateAborted:
			glog.Errorf("%s%s%s aborted: %v", o.prefix(), e.Op, commandSuffix(e.Command), e.Err)
		}
	}
}

func (o LogObserver) prefix() string {
	if o.Name == "" {
		return ""
	}
	return o.Name + ": "
}

func commandSuffix(cmd *protocol.Command) string {
	if cmd == nil {
		return ""
	}
	return " " + cmd.String()
}
