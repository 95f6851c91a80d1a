// Package serialport connects scanners attached to serial ports.
package serialport

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// Config describes the serial line settings.
type Config struct {
	Name     string
	BaudRate int
	DataBits int
	// Parity is one of none, odd, even, mark, space.
	Parity   string
	StopBits int
}

// DefaultConfig is the factory setting of the scanner module, 9600 8N1.
var DefaultConfig = Config{
	BaudRate: 9600,
	DataBits: 8,
	Parity:   "none",
	StopBits: 1,
}

// Mode converts the settings to serial.Mode.
func (c Config) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = DefaultConfig.BaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = DefaultConfig.DataBits
	}
	switch strings.ToLower(c.Parity) {
	case "", "none", "n":
		mode.Parity = serial.NoParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", c.Parity)
	}
	switch c.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", c.StopBits)
	}
	return mode, nil
}

// port is the part of serial.Port used by Port.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

var openPort = func(name string, mode *serial.Mode) (port, error) {
	return serial.Open(name, mode)
}

// Port is a serial port usable as scanner.Channel.
type Port struct {
	name string
	port port

	lock    sync.Mutex
	timeout time.Duration
}

// Open opens the port and drops stale input.
func Open(conf Config) (*Port, error) {
	mode, err := conf.Mode()
	if err != nil {
		return nil, err
	}
	p, err := openPort(conf.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", conf.Name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		glog.Warningf("%s: reset input buffer: %v", conf.Name, err)
	}
	glog.V(1).Infof("%s opened at %d baud", conf.Name, mode.BaudRate)
	return &Port{name: conf.Name, port: p, timeout: -1}, nil
}

// Name returns the device name.
func (p *Port) Name() string {
	return p.name
}

// Read implements scanner.Channel.
func (p *Port) Read(b []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, nil
	}
	p.lock.Lock()
	if timeout != p.timeout {
		if err := p.port.SetReadTimeout(timeout); err != nil {
			p.lock.Unlock()
			return 0, err
		}
		p.timeout = timeout
	}
	p.lock.Unlock()
	return p.port.Read(b)
}

// Write implements scanner.Channel.
func (p *Port) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close implements io.Closer.
func (p *Port) Close() error {
	glog.V(1).Infof("%s closed", p.name)
	return p.port.Close()
}
