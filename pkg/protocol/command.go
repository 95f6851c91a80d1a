package protocol

import "fmt"

// CommandKind enumerates the requests the driver can issue.
type CommandKind int

// Command kinds.
const (
	KindSetUARTMode CommandKind = iota
	KindSetContinuousMode
	KindSetTriggerMode
	KindBeeperOn
	KindBeeperOff
	KindLightOn
	KindLightOff
	KindTriggerOnce
	KindSetManualMode
	KindSetSensingMode
	KindStopScan
	KindReadRegister
	KindWriteRegister
	KindSaveSettings
	KindFactoryReset

	kindCount
)

var kindNames = [kindCount]string{
	KindSetUARTMode:       "set-uart-mode",
	KindSetContinuousMode: "set-continuous-mode",
	KindSetTriggerMode:    "set-trigger-mode",
	KindBeeperOn:          "beeper-on",
	KindBeeperOff:         "beeper-off",
	KindLightOn:           "light-on",
	KindLightOff:          "light-off",
	KindTriggerOnce:       "trigger-once",
	KindSetManualMode:     "set-manual-mode",
	KindSetSensingMode:    "set-sensing-mode",
	KindStopScan:          "stop-scan",
	KindReadRegister:      "read-register",
	KindWriteRegister:     "write-register",
	KindSaveSettings:      "save-settings",
	KindFactoryReset:      "factory-reset",
}

// Kinds lists all defined command kinds.
func Kinds() []CommandKind {
	kinds := make([]CommandKind, kindCount)
	for n := range kinds {
		kinds[n] = CommandKind(n)
	}
	return kinds
}

// IsValid checks if the kind is defined.
func (k CommandKind) IsValid() bool {
	return k >= 0 && k < kindCount
}

// String implements fmt.Stringer.
func (k CommandKind) String() string {
	if k.IsValid() {
		return kindNames[k]
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// ParseKind converts a kind name back to CommandKind.
func ParseKind(name string) (CommandKind, error) {
	for n, s := range kindNames {
		if s == name {
			return CommandKind(n), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Command is an immutable request to the module.
//
// Address and Length are used by register reads/writes only. Payload is the
// data of a register write, or for the operation-mode kinds (modes, beeper,
// light) the current operation register value to modify.
type Command struct {
	Kind    CommandKind
	Address uint16
	Length  int
	Payload []byte
}

// String implements fmt.Stringer.
func (c Command) String() string {
	switch c.Kind {
	case KindReadRegister:
		return fmt.Sprintf("%s %04X/%d", c.Kind, c.Address, c.Length)
	case KindWriteRegister:
		return fmt.Sprintf("%s %04X % X", c.Kind, c.Address, c.Payload)
	}
	return c.Kind.String()
}

// Simple creates a command without arguments.
func Simple(kind CommandKind) Command {
	return Command{Kind: kind}
}

// ModifyOperation creates an operation-mode command based on the current
// operation register value.
func ModifyOperation(kind CommandKind, current byte) Command {
	return Command{Kind: kind, Payload: []byte{current}}
}

// ReadRegister creates a command reading n bytes from addr.
func ReadRegister(addr uint16, n int) Command {
	return Command{Kind: KindReadRegister, Address: addr, Length: n}
}

// WriteRegister creates a command writing data at addr.
func WriteRegister(addr uint16, data ...byte) Command {
	return Command{Kind: KindWriteRegister, Address: addr, Payload: data}
}

// Registers.
const (
	RegOperation       uint16 = 0x0000
	RegTrigger         uint16 = 0x0002
	RegSettingCodes    uint16 = 0x0003
	RegScanTimeout     uint16 = 0x0006
	RegOutput          uint16 = 0x000D
	RegScanArea        uint16 = 0x002C
	RegResultOptions   uint16 = 0x0060
	RegFactoryReset    uint16 = 0x00D9
	RegHardwareVersion uint16 = 0x00E1
	RegSoftwareVersion uint16 = 0x00E2
	RegSoftwareYear    uint16 = 0x00E3
	RegSoftwareMonth   uint16 = 0x00E4
	RegSoftwareDay     uint16 = 0x00E5
)

// Operation register fields.
const (
	OpLEDIndication byte = 0x80
	OpBuzzer        byte = 0x40

	OpTargetMask     byte = 0x30
	OpTargetAlwaysOn byte = 0x20
	OpTargetStandard byte = 0x10

	OpLightMask     byte = 0x0c
	OpLightAlwaysOn byte = 0x08
	OpLightStandard byte = 0x04

	OpModeMask       byte = 0x03
	OpModeManual     byte = 0x00
	OpModeCommand    byte = 0x01
	OpModeContinuous byte = 0x02
	OpModeSensing    byte = 0x03

	// DefaultOperation is assumed when no current value is supplied:
	// buzzer on, standard target and illumination lights, manual mode.
	DefaultOperation = OpBuzzer | OpTargetStandard | OpLightStandard | OpModeManual
)

// Result option bits of RegResultOptions.
const (
	ResultEndCharacter byte = 0x01
	ResultCodeID       byte = 0x04
)

const (
	fnRead  byte = 0x07
	fnWrite byte = 0x08
	fnSave  byte = 0x09

	outputSerial  byte = 0x00
	factoryMagic  byte = 0x50
	triggerStart  byte = 0x01
	triggerStop   byte = 0x00
	saveArgument  byte = 0x00
	writeAckValue byte = 0x00
)
