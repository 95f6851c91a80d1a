package scanner

import (
	"fmt"
	"time"

	"github.com/robotalks/barscan/pkg/protocol"
)

// Scan area register values.
const (
	// AreaFull decodes anywhere in the image.
	AreaFull byte = 0x00
	// AreaCenter decodes only the center of the image.
	AreaCenter byte = 0x08
)

// BarcodeSet selects which symbologies are enabled in bulk.
type BarcodeSet byte

// Barcode sets.
const (
	BarcodesDisableAll BarcodeSet = 0x00
	BarcodesEnableAll  BarcodeSet = 0x02
	BarcodesDefault    BarcodeSet = 0x04
)

// Scan timeout limits, the register counts 100ms.
const (
	MinScanTimeout  = time.Millisecond
	MaxScanTimeout  = 25500 * time.Millisecond
	scanTimeoutUnit = 100 * time.Millisecond
)

const (
	settingCodesOff    = 0x01
	settingCodesOutput = 0x02
	symbologyEnabled   = 0x01
	maxSymbologyLen    = 0xff
)

// do runs fn with the slot held and the timeout turned into a deadline.
func (s *Scanner) do(timeout time.Duration, fn func(deadline time.Time) error) error {
	deadline := time.Now().Add(timeout)
	if err := s.acquire(deadline); err != nil {
		return err
	}
	defer s.release()
	return fn(deadline)
}

func (s *Scanner) write(timeout time.Duration, addr uint16, data ...byte) error {
	return s.do(timeout, func(deadline time.Time) error {
		_, err := s.call(protocol.WriteRegister(addr, data...), deadline)
		return err
	})
}

func (s *Scanner) readByte(addr uint16, deadline time.Time) (byte, error) {
	st, err := s.call(protocol.ReadRegister(addr, 1), deadline)
	if err != nil {
		return 0, err
	}
	return st.Data[0], nil
}

// Init prepares the module for this driver: result options match the wire
// configuration, and the operation register is loaded.
func (s *Scanner) Init(timeout time.Duration) error {
	return s.do(timeout, func(deadline time.Time) error {
		opts := protocol.ResultEndCharacter
		if s.Config().CodeID {
			opts |= protocol.ResultCodeID
		}
		if _, err := s.call(protocol.WriteRegister(protocol.RegResultOptions, opts), deadline); err != nil {
			return err
		}
		s.opKnown = false
		_, err := s.currentOperation(deadline)
		return err
	})
}

// SetScanTimeout sets how long a single scan lasts, rounded up to 100ms.
func (s *Scanner) SetScanTimeout(d, timeout time.Duration) error {
	if d < MinScanTimeout || d > MaxScanTimeout {
		return fmt.Errorf("%w: scan timeout %s out of range [%s, %s]", ErrInvalidArgument, d, MinScanTimeout, MaxScanTimeout)
	}
	units := (d + scanTimeoutUnit - 1) / scanTimeoutUnit
	return s.write(timeout, protocol.RegScanTimeout, byte(units))
}

// SetScanArea sets the decoding area and the bulk barcode selection.
func (s *Scanner) SetScanArea(area byte, barcodes BarcodeSet, timeout time.Duration) error {
	return s.write(timeout, protocol.RegScanArea, area|byte(barcodes))
}

// EnableSymbology enables or disables a symbology.
// For symbologies with length limits, non-zero minLen and maxLen are set too.
func (s *Scanner) EnableSymbology(sym Symbology, enable bool, minLen, maxLen int, timeout time.Duration) error {
	if !sym.IsValid() {
		return fmt.Errorf("%w: symbology %s", ErrInvalidArgument, sym)
	}
	if minLen < 0 || maxLen < 0 || minLen > maxSymbologyLen || maxLen > maxSymbologyLen ||
		(maxLen > 0 && minLen > maxLen) {
		return fmt.Errorf("%w: length range %d-%d", ErrInvalidArgument, minLen, maxLen)
	}
	info := symbologies[sym]
	if !info.ranged && (minLen > 0 || maxLen > 0) {
		return fmt.Errorf("%w: %s has no length limits", ErrInvalidArgument, sym)
	}
	return s.do(timeout, func(deadline time.Time) error {
		if !enable {
			_, err := s.call(protocol.WriteRegister(info.enable, 0), deadline)
			return err
		}
		if minLen > 0 {
			if _, err := s.call(protocol.WriteRegister(info.enable+1, byte(minLen)), deadline); err != nil {
				return err
			}
		}
		if maxLen > 0 {
			if _, err := s.call(protocol.WriteRegister(info.enable+2, byte(maxLen)), deadline); err != nil {
				return err
			}
		}
		_, err := s.call(protocol.WriteRegister(info.enable, symbologyEnabled), deadline)
		return err
	})
}

// SetSettingCodes enables or disables configuration by scanning setting codes.
func (s *Scanner) SetSettingCodes(enabled bool, timeout time.Duration) error {
	return s.do(timeout, func(deadline time.Time) error {
		val, err := s.readByte(protocol.RegSettingCodes, deadline)
		if err != nil {
			return err
		}
		if enabled {
			val &^= settingCodesOff | settingCodesOutput
		} else {
			val = val&^settingCodesOff | settingCodesOutput
		}
		_, err = s.call(protocol.WriteRegister(protocol.RegSettingCodes, val), deadline)
		return err
	})
}

func formatVersion(b byte) string {
	return fmt.Sprintf("V%d.%02d", b/100, b%100)
}

func (s *Scanner) version(addr uint16, timeout time.Duration) (ver string, err error) {
	err = s.do(timeout, func(deadline time.Time) error {
		b, err := s.readByte(addr, deadline)
		if err == nil {
			ver = formatVersion(b)
		}
		return err
	})
	return
}

// HardwareVersion reads the hardware version, e.g. "V1.10".
func (s *Scanner) HardwareVersion(timeout time.Duration) (string, error) {
	return s.version(protocol.RegHardwareVersion, timeout)
}

// SoftwareVersion reads the firmware version.
func (s *Scanner) SoftwareVersion(timeout time.Duration) (string, error) {
	return s.version(protocol.RegSoftwareVersion, timeout)
}

// SoftwareDate reads the firmware build date.
func (s *Scanner) SoftwareDate(timeout time.Duration) (date time.Time, err error) {
	err = s.do(timeout, func(deadline time.Time) error {
		var ymd [3]byte
		for i, addr := range []uint16{protocol.RegSoftwareYear, protocol.RegSoftwareMonth, protocol.RegSoftwareDay} {
			b, err := s.readByte(addr, deadline)
			if err != nil {
				return err
			}
			ymd[i] = b
		}
		if ymd[1] < 1 || ymd[1] > 12 || ymd[2] < 1 || ymd[2] > 31 {
			return fmt.Errorf("%w: invalid software date % X", protocol.ErrUnexpectedFrame, ymd)
		}
		date = time.Date(2000+int(ymd[0]), time.Month(ymd[1]), int(ymd[2]), 0, 0, 0, 0, time.UTC)
		return nil
	})
	return
}

func (s *Scanner) simple(kind protocol.CommandKind, timeout time.Duration) error {
	return s.do(timeout, func(deadline time.Time) error {
		_, err := s.call(protocol.Simple(kind), deadline)
		return err
	})
}

// Trigger starts a single scan without waiting for the result.
func (s *Scanner) Trigger(timeout time.Duration) error {
	return s.simple(protocol.KindTriggerOnce, timeout)
}

// StopScan stops a scan in progress.
func (s *Scanner) StopScan(timeout time.Duration) error {
	return s.simple(protocol.KindStopScan, timeout)
}

// SaveSettings persists the registers to flash.
func (s *Scanner) SaveSettings(timeout time.Duration) error {
	return s.simple(protocol.KindSaveSettings, timeout)
}

// FactoryReset restores factory settings. The operation register shadow is
// dropped.
func (s *Scanner) FactoryReset(timeout time.Duration) error {
	return s.do(timeout, func(deadline time.Time) error {
		s.opKnown = false
		_, err := s.call(protocol.Simple(protocol.KindFactoryReset), deadline)
		return err
	})
}
