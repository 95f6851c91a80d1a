package sh

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/barscan/pkg/env"
	"github.com/robotalks/barscan/pkg/msgs"
	"github.com/robotalks/barscan/pkg/scanner"
	"github.com/robotalks/barscan/pkg/scanner/scannertest"
)

func newTestShell(t *testing.T) *Shell {
	conf := env.NewConfig()
	conf.Serial.Name = env.MockPort
	s := &Shell{Config: conf}
	t.Cleanup(s.Close)
	return s
}

func TestExec(t *testing.T) {
	s := newTestShell(t)
	_, err := s.Exec("version")
	require.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, s.Open(""))
	out, err := s.Exec("version")
	require.NoError(t, err)
	require.Equal(t, "hardware V1.10 software V1.15 2020-06-18", out)

	out, err = s.Exec("beep", "off")
	require.NoError(t, err)
	require.Equal(t, "OK", out)

	out, err = s.Exec("scan")
	require.NoError(t, err)
	require.Equal(t, scannertest.SampleBarcodes[0], out)

	_, err = s.Exec("mode", "sideways")
	require.ErrorIs(t, err, scanner.ErrInvalidArgument)

	s.Close()
	require.Nil(t, s.Scanner)
}

func TestExecJSON(t *testing.T) {
	s := newTestShell(t)
	s.OutputJSON = true
	require.NoError(t, s.Open(env.MockPort))

	out, err := s.Exec("get", "0xe1")
	require.NoError(t, err)
	var res msgs.CommandResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, "get", res.Command)
	require.Equal(t, "6e", res.Value)

	out, err = s.Exec("beep", "loud")
	require.Error(t, err)
	res = msgs.CommandResult{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Failed())
	require.Equal(t, "invalid-argument", res.ErrorKind)
}

func TestScannerCmds(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range commands {
		require.False(t, names[cmd.Name], cmd.Name)
		names[cmd.Name] = true
	}
	for _, name := range []string{"open", "close", "scan", "read", "version", "mode", "set"} {
		require.True(t, names[name], name)
	}
}
