package scanner

import (
	"fmt"
	"strings"
	"time"
)

// Symbology is a barcode type known to the module.
type Symbology int

// Symbologies.
const (
	SymbologyUnknown Symbology = iota
	EAN13
	EAN8
	UPCA
	UPCE0
	UPCE1
	Code128
	Code39
	Code93
	Codabar
	QR
	Interleaved2of5
	Industrial2of5
	Matrix2of5
	Code11
	MSIPlessey
	RSS14
	RSSLimited
	RSSExpanded
	RSSStacked
	DotMatrix
	PDF417
	MicroPDF417
	MicroQR
	ISSN
	ISBN
	symbologyCount
)

type symbologyInfo struct {
	name   string
	codeID byte
	// enable register, followed by min and max length registers when
	// ranged is set.
	enable uint16
	ranged bool
}

var symbologies = [symbologyCount]symbologyInfo{
	SymbologyUnknown: {name: "unknown"},
	EAN13:            {name: "ean13", codeID: 0x64, enable: 0x002e},
	EAN8:             {name: "ean8", enable: 0x002f},
	UPCA:             {name: "upca", enable: 0x0030},
	UPCE0:            {name: "upce0", enable: 0x0031},
	UPCE1:            {name: "upce1", enable: 0x0032},
	Code128:          {name: "code128", codeID: 0x6a, enable: 0x0033, ranged: true},
	Code39:           {name: "code39", codeID: 0x62, enable: 0x0036, ranged: true},
	Code93:           {name: "code93", enable: 0x0039, ranged: true},
	Codabar:          {name: "codabar", enable: 0x003c, ranged: true},
	QR:               {name: "qr", codeID: 0x51, enable: 0x003f},
	Interleaved2of5:  {name: "interleaved2of5", codeID: 0x65, enable: 0x0040, ranged: true},
	Industrial2of5:   {name: "industrial2of5", enable: 0x0043, ranged: true},
	Matrix2of5:       {name: "matrix2of5", enable: 0x0046, ranged: true},
	Code11:           {name: "code11", enable: 0x0049, ranged: true},
	MSIPlessey:       {name: "msi", enable: 0x004c, ranged: true},
	RSS14:            {name: "rss14", enable: 0x004f},
	RSSLimited:       {name: "rss-limited", enable: 0x0050},
	RSSExpanded:      {name: "rss-expanded", enable: 0x0051, ranged: true},
	RSSStacked:       {name: "rss-stacked", enable: 0x0026},
	DotMatrix:        {name: "dotmatrix", codeID: 0x75, enable: 0x0054},
	PDF417:           {name: "pdf417", enable: 0x0055},
	MicroPDF417:      {name: "micropdf417", enable: 0x0029},
	MicroQR:          {name: "microqr", enable: 0x005f},
	ISSN:             {name: "issn", enable: 0x0056},
	ISBN:             {name: "isbn", enable: 0x0057},
}

var codeIDs = func() map[byte]Symbology {
	m := make(map[byte]Symbology)
	for sym, info := range symbologies {
		if info.codeID != 0 {
			m[info.codeID] = Symbology(sym)
		}
	}
	return m
}()

// Symbologies lists all known symbologies.
func Symbologies() []Symbology {
	syms := make([]Symbology, 0, symbologyCount-1)
	for sym := EAN13; sym < symbologyCount; sym++ {
		syms = append(syms, sym)
	}
	return syms
}

// IsValid reports whether the symbology is known.
func (s Symbology) IsValid() bool {
	return s > SymbologyUnknown && s < symbologyCount
}

// String implements fmt.Stringer.
func (s Symbology) String() string {
	if s >= SymbologyUnknown && s < symbologyCount {
		return symbologies[s].name
	}
	return fmt.Sprintf("symbology(%d)", int(s))
}

// ParseSymbology converts a name to a Symbology.
func ParseSymbology(name string) (Symbology, error) {
	name = strings.ToLower(name)
	for _, sym := range Symbologies() {
		if symbologies[sym].name == name {
			return sym, nil
		}
	}
	return SymbologyUnknown, fmt.Errorf("%w: unknown symbology %q", ErrInvalidArgument, name)
}

// SymbologyOf maps a Code ID prefix byte to the symbology.
func SymbologyOf(codeID byte) Symbology {
	return codeIDs[codeID]
}

// DecodedBarcode is the result of a scan.
type DecodedBarcode struct {
	// Symbology is known only when the Code ID prefix is enabled.
	Symbology Symbology
	// Raw is the payload without prefix and terminator.
	Raw       []byte
	ScannedAt time.Time
}

func decodeBarcode(payload []byte, codeID bool, at time.Time) *DecodedBarcode {
	b := &DecodedBarcode{Raw: payload, ScannedAt: at}
	if codeID && len(payload) > 0 {
		b.Symbology, b.Raw = SymbologyOf(payload[0]), payload[1:]
	}
	return b
}

// Text returns the payload as a string.
func (b *DecodedBarcode) Text() string {
	return string(b.Raw)
}

// Lines splits the payload of multi-line codes.
func (b *DecodedBarcode) Lines() []string {
	return strings.Split(string(b.Raw), "\n")
}

// String implements fmt.Stringer.
func (b *DecodedBarcode) String() string {
	return fmt.Sprintf("%s %q", b.Symbology, b.Raw)
}
