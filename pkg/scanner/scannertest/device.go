// Package scannertest provides an in-memory scanner module.
package scannertest

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/robotalks/barscan/pkg/protocol"
)

// Command function codes as written by the host.
const (
	FnRead  byte = 0x07
	FnWrite byte = 0x08
	FnSave  byte = 0x09
)

// Request is a command received by the Device.
type Request struct {
	Fn   byte
	Addr uint16
	Data []byte
}

// ReadLength returns the number of bytes requested by a read.
func (r Request) ReadLength() int {
	if r.Fn != FnRead || len(r.Data) == 0 {
		return 0
	}
	if r.Data[0] == 0 {
		return protocol.MaxReadLength
	}
	return int(r.Data[0])
}

// Device emulates a scanner module behind a scanner.Channel.
// Exported fields must be set before the Device is used.
type Device struct {
	// Registers is the register file. Writes update it, reads answer from it.
	Registers map[uint16]byte
	// Status is the status code of every ack.
	Status byte
	// Silent suppresses acks.
	Silent bool
	// OnTrigger returns the bytes emitted after the ack of a trigger.
	// It's called with the Device locked.
	OnTrigger func() []byte

	conf  protocol.Config
	codec *protocol.Codec

	lock     sync.Mutex
	wake     chan struct{}
	rx       []byte
	tx       []byte
	writes   [][]byte
	requests []Request
	garbage  int
	readErr  error
	writeErr error
	closed   bool
}

// NewDevice creates a Device speaking the wire configuration.
func NewDevice(conf protocol.Config) *Device {
	conf = conf.WithDefaults()
	return &Device{
		Registers: make(map[uint16]byte),
		conf:      conf,
		codec:     protocol.NewCodec(conf),
		wake:      make(chan struct{}),
	}
}

// Read implements scanner.Channel.
func (d *Device) Read(p []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		d.lock.Lock()
		if d.closed {
			d.lock.Unlock()
			return 0, io.ErrClosedPipe
		}
		if d.readErr != nil {
			err := d.readErr
			d.lock.Unlock()
			return 0, err
		}
		if len(d.tx) > 0 {
			n := copy(p, d.tx)
			d.tx = d.tx[n:]
			d.lock.Unlock()
			return n, nil
		}
		wake := d.wake
		d.lock.Unlock()
		select {
		case <-wake:
		case <-timer.C:
			return 0, nil
		}
	}
}

// Write implements scanner.Channel.
func (d *Device) Write(p []byte) (int, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if d.writeErr != nil {
		return 0, d.writeErr
	}
	d.writes = append(d.writes, append([]byte(nil), p...))
	d.rx = append(d.rx, p...)
	for d.parse() {
	}
	return len(p), nil
}

// Close implements io.Closer.
func (d *Device) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.closed = true
	d.notify()
	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.closed
}

// Inject queues bytes as if sent by the module.
func (d *Device) Inject(b []byte) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.emit(b)
}

// InjectBarcode queues a barcode frame.
func (d *Device) InjectBarcode(text string) {
	d.Inject(append([]byte(text), d.conf.Terminator...))
}

// FailReads makes subsequent reads fail with err.
func (d *Device) FailReads(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.readErr = err
	d.notify()
}

// SetSilent changes Silent while the Device is in use.
func (d *Device) SetSilent(silent bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.Silent = silent
}

// FailWrites makes subsequent writes fail with err.
func (d *Device) FailWrites(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.writeErr = err
}

// Requests returns the commands received so far.
func (d *Device) Requests() []Request {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]Request(nil), d.requests...)
}

// Writes returns the byte slices passed to Write.
func (d *Device) Writes() [][]byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([][]byte(nil), d.writes...)
}

// Garbage returns the number of bytes which didn't parse as commands.
func (d *Device) Garbage() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.garbage
}

// Register returns the value of a register.
func (d *Device) Register(addr uint16) byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Registers[addr]
}

func (d *Device) emit(b []byte) {
	d.tx = append(d.tx, b...)
	d.notify()
}

func (d *Device) notify() {
	close(d.wake)
	d.wake = make(chan struct{})
}

// parse handles one complete command from rx.
func (d *Device) parse() bool {
	hdr := d.conf.CommandHeader
	for len(d.rx) > 0 && !bytes.HasPrefix(d.rx, hdr[:min(len(hdr), len(d.rx))]) {
		d.rx = d.rx[1:]
		d.garbage++
	}
	if len(d.rx) < len(hdr)+4 {
		return false
	}
	cs := d.conf.Checksum.Size()
	size := len(hdr) + 4 + int(d.rx[len(hdr)+1]) + cs
	if len(d.rx) < size {
		return false
	}
	frame := d.rx[:size]
	d.rx = d.rx[size:]
	body := frame[len(hdr) : size-cs]
	if d.conf.Checksum == protocol.ChecksumCRC16 {
		if protocol.VerifyCRC16(body, binary.BigEndian.Uint16(frame[size-cs:])) != nil {
			d.garbage += size
			return true
		}
	}
	req := Request{
		Fn:   body[0],
		Addr: binary.BigEndian.Uint16(body[2:4]),
		Data: append([]byte(nil), body[4:]...),
	}
	d.requests = append(d.requests, req)
	d.handle(req)
	return true
}

func (d *Device) handle(req Request) {
	data := []byte{0}
	switch req.Fn {
	case FnRead:
		data = make([]byte, req.ReadLength())
		for i := range data {
			data[i] = d.Registers[req.Addr+uint16(i)]
		}
	case FnWrite:
		if d.Status == 0 {
			for i, b := range req.Data {
				d.Registers[req.Addr+uint16(i)] = b
			}
		}
	}
	if d.Silent {
		return
	}
	d.emit(d.codec.EncodeAck(protocol.Status{Code: d.Status, Data: data}))
	if req.Fn == FnWrite && req.Addr == protocol.RegTrigger &&
		len(req.Data) > 0 && req.Data[0] == 1 && d.OnTrigger != nil {
		d.emit(d.OnTrigger())
	}
}
