package sh

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/barscan/pkg/env"
	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/scanner"
	"github.com/robotalks/barscan/pkg/service"
)

// ErrNotOpen indicates a command needs an open scanner.
var ErrNotOpen = errors.New("scanner not open, use open [PORT]")

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool

	Shell   *ishell.Shell
	Config  *env.Config
	Scanner *scanner.Scanner
}

const (
	shellKey     = "$shell"
	closedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	for _, cmd := range service.Commands {
		AddCmds(ScannerCmd(cmd))
	}
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

// Open opens the scanner on port, or the configured port if empty.
// The scanner already open is closed first.
func (s *Shell) Open(port string) error {
	if port != "" {
		s.Config.Serial.Name = port
	}
	s.Close()
	sc, err := s.Config.OpenScanner()
	if err != nil {
		return err
	}
	s.Scanner = sc
	s.setPrompt(fmt.Sprintf("%s > ", s.Config.Serial.Name))
	return nil
}

// Close closes the scanner.
func (s *Shell) Close() {
	if s.Scanner != nil {
		if err := s.Scanner.Close(); err != nil {
			glog.Warningf("close %s: %v", s.Config.Serial.Name, err)
		}
		s.Scanner = nil
		s.setPrompt(closedPrompt)
	}
}

// Exec runs a scanner command and formats the output.
func (s *Shell) Exec(name string, args ...string) (string, error) {
	if s.Scanner == nil {
		return "", ErrNotOpen
	}
	req := &msgs.CommandRequest{Command: name, Args: args}
	res, err := service.Exec(s.Scanner, name, args, s.Config.Timeout)
	if s.OutputJSON {
		result := msgs.NewCommandResult(req, res.Status, err)
		result.Value = res.Value
		out, jsonErr := json.Marshal(result)
		if jsonErr != nil {
			return "", jsonErr
		}
		return string(out), err
	}
	if err != nil {
		return "", err
	}
	if res.Value != "" {
		return res.Value, nil
	}
	return "OK", nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen && s.Config.Serial.Name != "" {
		if err := s.Open(""); err != nil {
			if !s.Interactive {
				glog.Exitf("open %s: %v", s.Config.Serial.Name, err)
			}
			s.Shell.Printf("open %s: %v\n", s.Config.Serial.Name, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// ScannerCmd exposes a scanner command in the shell.
func ScannerCmd(cmd *service.Command) *ishell.Cmd {
	help := cmd.Help
	if cmd.Usage != "" {
		help = cmd.Usage + ": " + help
	}
	return &ishell.Cmd{
		Name:    cmd.Name,
		Aliases: cmd.Aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			out, err := ShellFrom(c).Exec(cmd.Name, c.Args...)
			if out != "" {
				c.Println(out)
			}
			if err != nil {
				c.Err(err)
			}
		},
	}
}

var (
	// OpenCmd opens a scanner.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[PORT]",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Open(strings.Join(c.Args, " ")); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the scanner.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Close()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.NewConfig()).WithAutoOpen(true).Run(flag.Args()...)
}
