package scannertest

import (
	"github.com/robotalks/barscan/pkg/protocol"
)

// SampleBarcodes are scanned by a simulator created without barcodes.
var SampleBarcodes = []string{
	"4901234567890",
	"https://example.com/item/42",
	"CODE128-0001",
}

// NewSimulator creates a Device which looks like a factory-fresh module.
// Each trigger scans the next of barcodes, cycling.
func NewSimulator(conf protocol.Config, barcodes ...string) *Device {
	if len(barcodes) == 0 {
		barcodes = SampleBarcodes
	}
	d := NewDevice(conf)
	d.Registers[protocol.RegOperation] = protocol.DefaultOperation
	d.Registers[protocol.RegScanTimeout] = 50
	d.Registers[protocol.RegHardwareVersion] = 0x6e
	d.Registers[protocol.RegSoftwareVersion] = 0x73
	d.Registers[protocol.RegSoftwareYear] = 20
	d.Registers[protocol.RegSoftwareMonth] = 6
	d.Registers[protocol.RegSoftwareDay] = 18
	next := 0
	d.OnTrigger = func() []byte {
		text := barcodes[next%len(barcodes)]
		next++
		var frame []byte
		if d.conf.CodeID {
			frame = append(frame, codeID(text))
		}
		frame = append(frame, text...)
		return append(frame, d.conf.Terminator...)
	}
	return d
}

// codeID tells EAN-13 from everything else, which is sent as Code 128.
func codeID(text string) byte {
	if len(text) != 13 {
		return 0x6a
	}
	for _, c := range text {
		if c < '0' || c > '9' {
			return 0x6a
		}
	}
	return 0x64
}
