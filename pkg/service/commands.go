package service

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/protocol"
	"github.com/robotalks/barscan/pkg/scanner"
)

// Result is the outcome of a Command.
type Result struct {
	Status protocol.Status
	Value  string
}

// Command is a named scanner operation usable from the console and as a
// remote command.
type Command struct {
	Name    string
	Aliases []string
	Usage   string
	Help    string
	// MinArgs is the number of required arguments.
	MinArgs int
	Run     func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error)
}

func (c *Command) exec(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
	if len(args) < c.MinArgs {
		return Result{}, fmt.Errorf("%w: usage: %s %s", scanner.ErrInvalidArgument, c.Name, c.Usage)
	}
	return c.Run(s, args, timeout)
}

// Exec runs the command named name.
func Exec(s *scanner.Scanner, name string, args []string, timeout time.Duration) (Result, error) {
	cmd := Lookup(name)
	if cmd == nil {
		return Result{}, fmt.Errorf("%w: unknown command %q", scanner.ErrInvalidArgument, name)
	}
	return cmd.exec(s, args, timeout)
}

// Execute runs a remote command request. timeout is used when the request
// doesn't specify one.
func Execute(s *scanner.Scanner, req *msgs.CommandRequest, timeout time.Duration) *msgs.CommandResult {
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	res, err := Exec(s, req.Command, req.Args, timeout)
	result := msgs.NewCommandResult(req, res.Status, err)
	result.Value = res.Value
	return result
}

// Lookup finds a command by name or alias.
func Lookup(name string) *Command {
	for _, cmd := range Commands {
		if cmd.Name == name {
			return cmd
		}
		for _, alias := range cmd.Aliases {
			if alias == name {
				return cmd
			}
		}
	}
	return nil
}

func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "1", "true", "yes":
		return true, nil
	case "off", "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: expect on or off, got %q", scanner.ErrInvalidArgument, arg)
}

func parseAddr(arg string) (uint16, error) {
	addr, err := strconv.ParseUint(arg, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: address %q", scanner.ErrInvalidArgument, arg)
	}
	return uint16(addr), nil
}

func parseInt(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", scanner.ErrInvalidArgument, arg)
	}
	return n, nil
}

func nothing(err error) (Result, error) {
	return Result{}, err
}

func barcode(b *scanner.DecodedBarcode, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return Result{Status: protocol.Status{Data: b.Raw}, Value: b.Text()}, nil
}

var areas = map[string]byte{
	"full":   scanner.AreaFull,
	"center": scanner.AreaCenter,
}

var barcodeSets = map[string]scanner.BarcodeSet{
	"none":    scanner.BarcodesDisableAll,
	"all":     scanner.BarcodesEnableAll,
	"default": scanner.BarcodesDefault,
}

func names[V any](m map[string]V) string {
	list := make([]string, 0, len(m))
	for name := range m {
		list = append(list, name)
	}
	sort.Strings(list)
	return strings.Join(list, "|")
}

// Commands lists the scanner commands.
var Commands = []*Command{
	{
		Name:    "mode",
		Usage:   "uart|trigger|continuous|manual|sensing",
		Help:    "Switch scan mode.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			mode, err := scanner.ParseMode(args[0])
			if err != nil {
				return nothing(err)
			}
			return nothing(s.Configure(mode, timeout))
		},
	},
	{
		Name:    "beep",
		Usage:   "on|off",
		Help:    "Turn the decode beep on or off.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			on, err := parseSwitch(args[0])
			if err != nil {
				return nothing(err)
			}
			return nothing(s.Beeper(on, timeout))
		},
	},
	{
		Name:    "light",
		Usage:   "on|off",
		Help:    "Turn the illumination on or off.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			on, err := parseSwitch(args[0])
			if err != nil {
				return nothing(err)
			}
			return nothing(s.Light(on, timeout))
		},
	},
	{
		Name:    "trigger",
		Aliases: []string{"t"},
		Help:    "Start a single scan.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return nothing(s.Trigger(timeout))
		},
	},
	{
		Name: "stop",
		Help: "Stop scanning.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return nothing(s.StopScan(timeout))
		},
	},
	{
		Name:    "scan",
		Aliases: []string{"s"},
		Help:    "Trigger a scan and wait for the barcode.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return barcode(s.TriggerAndRead(timeout))
		},
	},
	{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "Wait for the next barcode.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return barcode(s.ReadBarcode(timeout))
		},
	},
	{
		Name:    "version",
		Aliases: []string{"ver"},
		Help:    "Show hardware and firmware versions.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			hw, err := s.HardwareVersion(timeout)
			if err != nil {
				return nothing(err)
			}
			sw, err := s.SoftwareVersion(timeout)
			if err != nil {
				return nothing(err)
			}
			date, err := s.SoftwareDate(timeout)
			if err != nil {
				return nothing(err)
			}
			return Result{Value: fmt.Sprintf("hardware %s software %s %s", hw, sw, date.Format("2006-01-02"))}, nil
		},
	},
	{
		Name:    "timeout",
		Usage:   "DURATION",
		Help:    "Set the duration of a single scan, e.g. 5s.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return nothing(fmt.Errorf("%w: %v", scanner.ErrInvalidArgument, err))
			}
			return nothing(s.SetScanTimeout(d, timeout))
		},
	},
	{
		Name:    "area",
		Usage:   names(areas) + " [" + names(barcodeSets) + "]",
		Help:    "Set the decoding area and enabled barcodes.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			area, ok := areas[args[0]]
			if !ok {
				return nothing(fmt.Errorf("%w: area %q", scanner.ErrInvalidArgument, args[0]))
			}
			set := scanner.BarcodesDefault
			if len(args) > 1 {
				if set, ok = barcodeSets[args[1]]; !ok {
					return nothing(fmt.Errorf("%w: barcodes %q", scanner.ErrInvalidArgument, args[1]))
				}
			}
			return nothing(s.SetScanArea(area, set, timeout))
		},
	},
	{
		Name:    "symbology",
		Aliases: []string{"sym"},
		Usage:   "NAME on|off [MIN MAX]",
		Help:    "Enable or disable a symbology, optionally with length limits.",
		MinArgs: 2,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			sym, err := scanner.ParseSymbology(args[0])
			if err != nil {
				return nothing(err)
			}
			on, err := parseSwitch(args[1])
			if err != nil {
				return nothing(err)
			}
			var minLen, maxLen int
			if len(args) > 3 {
				if minLen, err = parseInt(args[2]); err != nil {
					return nothing(err)
				}
				if maxLen, err = parseInt(args[3]); err != nil {
					return nothing(err)
				}
			}
			return nothing(s.EnableSymbology(sym, on, minLen, maxLen, timeout))
		},
	},
	{
		Name:    "settings",
		Usage:   "on|off",
		Help:    "Allow or ignore setting barcodes.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			on, err := parseSwitch(args[0])
			if err != nil {
				return nothing(err)
			}
			return nothing(s.SetSettingCodes(on, timeout))
		},
	},
	{
		Name: "init",
		Help: "Set result options to match the driver.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return nothing(s.Init(timeout))
		},
	},
	{
		Name: "save",
		Help: "Save settings to flash.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return nothing(s.SaveSettings(timeout))
		},
	},
	{
		Name: "reset",
		Help: "Restore factory settings.",
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			return nothing(s.FactoryReset(timeout))
		},
	},
	{
		Name:    "get",
		Usage:   "ADDR [COUNT]",
		Help:    "Read registers.",
		MinArgs: 1,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			addr, err := parseAddr(args[0])
			if err != nil {
				return nothing(err)
			}
			n := 1
			if len(args) > 1 {
				if n, err = parseInt(args[1]); err != nil {
					return nothing(err)
				}
			}
			if n < 1 || n > protocol.MaxReadLength {
				return nothing(fmt.Errorf("%w: count %d", scanner.ErrInvalidArgument, n))
			}
			st, err := s.SendCommand(protocol.ReadRegister(addr, n), timeout)
			return Result{Status: st, Value: hex.EncodeToString(st.Data)}, err
		},
	},
	{
		Name:    "set",
		Usage:   "ADDR HEX",
		Help:    "Write registers, e.g. set 0x0000 d6.",
		MinArgs: 2,
		Run: func(s *scanner.Scanner, args []string, timeout time.Duration) (Result, error) {
			addr, err := parseAddr(args[0])
			if err != nil {
				return nothing(err)
			}
			data, err := hex.DecodeString(strings.Join(args[1:], ""))
			if err != nil || len(data) == 0 {
				return nothing(fmt.Errorf("%w: data %q", scanner.ErrInvalidArgument, strings.Join(args[1:], " ")))
			}
			st, err := s.SendCommand(protocol.WriteRegister(addr, data...), timeout)
			return Result{Status: st}, err
		},
	},
}
