// Package env provides the configuration shared by the binaries.
package env

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/protocol"
	"github.com/robotalks/barscan/pkg/scanner"
	"github.com/robotalks/barscan/pkg/scanner/scannertest"
	"github.com/robotalks/barscan/pkg/serialport"
)

// MockPort is the port name of the built-in simulator.
const MockPort = "mock"

// Config provides common options to open scanners and publish scans.
type Config struct {
	Serial serialport.Config
	// Revision selects the wire preset, see protocol.Preset.
	Revision string
	CodeID   bool
	FailFast bool
	// Timeout bounds every command.
	Timeout time.Duration
	Mode    string

	// ScannerID identifies the scanner in published topics.
	ScannerID string
	// MQTTURL is the broker, e.g. mqtt://host:port/topic-prefix.
	// Publishing to MQTT is disabled when empty.
	MQTTURL string
	// WebSocketAddr is the listen address of the websocket server.
	// Disabled when empty.
	WebSocketAddr string
	// Format is the payload encoding of MQTT messages.
	Format string
}

var defaultConfig = Config{
	Serial:   serialport.DefaultConfig,
	Revision: "a",
	Timeout:  time.Second,
	Mode:     scanner.ModeContinuous.String(),
	Format:   msgs.FormatProto.String(),
}

func init() {
	defaultConfig.Serial.Name = "/dev/ttyUSB0"
	if val := os.Getenv("BARSCAN_PORT"); val != "" {
		defaultConfig.Serial.Name = val
	}
	if val := os.Getenv("BARSCAN_REVISION"); val != "" {
		defaultConfig.Revision = val
	}
	if val := os.Getenv("BARSCAN_ID"); val != "" {
		defaultConfig.ScannerID = val
	}
	if val := os.Getenv("BARSCAN_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("BARSCAN_WS_ADDR"); val != "" {
		defaultConfig.WebSocketAddr = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Serial.Name, "port", defaultConfig.Serial.Name, "Serial port of the scanner, or \"mock\".")
	flag.IntVar(&defaultConfig.Serial.BaudRate, "baud", defaultConfig.Serial.BaudRate, "Baud rate.")
	flag.StringVar(&defaultConfig.Serial.Parity, "parity", defaultConfig.Serial.Parity, "Parity: none, odd, even, mark, space.")
	flag.StringVar(&defaultConfig.Revision, "revision", defaultConfig.Revision, "Wire format revision: a, b, c.")
	flag.BoolVar(&defaultConfig.CodeID, "code-id", defaultConfig.CodeID, "Barcodes are prefixed with Code ID.")
	flag.BoolVar(&defaultConfig.FailFast, "fail-fast", defaultConfig.FailFast, "Fail requests when the scanner is busy.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command timeout.")
	flag.StringVar(&defaultConfig.Mode, "mode", defaultConfig.Mode, "Scan mode: uart, trigger, continuous, manual, sensing.")
	flag.StringVar(&defaultConfig.ScannerID, "id", defaultConfig.ScannerID, "Scanner ID, default derives from machine ID.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.WebSocketAddr, "ws", defaultConfig.WebSocketAddr, "Websocket listen address.")
	flag.StringVar(&defaultConfig.Format, "format", defaultConfig.Format, "MQTT payload format: proto, json.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MachineID returns an ID of this machine keyed for barscan, or the
// hostname when the machine ID is unavailable.
func MachineID() string {
	id, err := machineid.ProtectedID("barscan")
	if err == nil {
		return id[:12]
	}
	glog.Warningf("machine id: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "barscan"
}

// ID returns ScannerID, defaults to MachineID.
func (c *Config) ID() string {
	if c.ScannerID == "" {
		c.ScannerID = MachineID()
	}
	return c.ScannerID
}

// WireConfig returns the wire config of Revision.
func (c *Config) WireConfig() (protocol.Config, error) {
	conf, err := protocol.Preset(c.Revision)
	if err != nil {
		return conf, err
	}
	conf.CodeID = c.CodeID
	return conf, nil
}

// ScanMode parses Mode.
func (c *Config) ScanMode() (scanner.Mode, error) {
	return scanner.ParseMode(c.Mode)
}

// PayloadFormat parses Format.
func (c *Config) PayloadFormat() (msgs.Format, error) {
	return msgs.ParseFormat(c.Format)
}

// OpenChannel opens the serial port, or creates a simulator for MockPort.
func (c *Config) OpenChannel() (scanner.Channel, error) {
	if c.Serial.Name == MockPort {
		conf, err := c.WireConfig()
		if err != nil {
			return nil, err
		}
		return scannertest.NewSimulator(conf), nil
	}
	p, err := serialport.Open(c.Serial)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Options returns the scanner options.
func (c *Config) Options(opts ...scanner.Option) ([]scanner.Option, error) {
	conf, err := c.WireConfig()
	if err != nil {
		return nil, err
	}
	options := []scanner.Option{
		scanner.WithConfig(conf),
		scanner.WithObserver(scanner.LogObserver{Name: c.Serial.Name}),
	}
	if c.FailFast {
		options = append(options, scanner.WithFailFast())
	}
	return append(options, opts...), nil
}

// OpenScanner opens the channel and creates a Scanner on it.
// opts override the options derived from the config.
func (c *Config) OpenScanner(opts ...scanner.Option) (*scanner.Scanner, error) {
	options, err := c.Options(opts...)
	if err != nil {
		return nil, err
	}
	ch, err := c.OpenChannel()
	if err != nil {
		return nil, fmt.Errorf("open scanner: %w", err)
	}
	return scanner.New(ch, options...), nil
}
