package msgs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/barscan/pkg/protocol"
	"github.com/robotalks/barscan/pkg/scanner"
)

func TestScanEvent(t *testing.T) {
	at := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	ev := NewScanEvent("s1", 7, &scanner.DecodedBarcode{
		Symbology: scanner.EAN13,
		Raw:       []byte("4901234567890"),
		ScannedAt: at,
	})
	require.Equal(t, "ean13", ev.Symbology)
	require.Equal(t, "4901234567890", ev.Text)
	require.Equal(t, at.UnixNano()/1e6, ev.Timestamp)

	for _, f := range []Format{FormatProto, FormatJSON} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := f.Marshal(ev)
			require.NoError(t, err)
			var decoded ScanEvent
			require.NoError(t, f.Unmarshal(data, &decoded))
			require.Equal(t, *ev, decoded)
		})
	}
}

func TestCommandResult(t *testing.T) {
	req := &CommandRequest{ID: "42", Command: "version"}
	res := NewCommandResult(req, protocol.Status{Data: []byte{0x6e}}, nil)
	require.False(t, res.Failed())
	require.Equal(t, "42", res.ID)
	require.Equal(t, []byte{0x6e}, res.Data)

	res = NewCommandResult(req, protocol.Status{}, &scanner.CommandError{Command: protocol.KindTriggerOnce, Code: 3})
	require.True(t, res.Failed())
	require.Equal(t, uint32(3), res.Status)
	require.Equal(t, "rejected", res.ErrorKind)

	res = NewCommandResult(req, protocol.Status{}, errors.New("boom"))
	require.Equal(t, "other", res.ErrorKind)
	require.Equal(t, "boom", res.Error)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, f)
	f, err = ParseFormat("pb")
	require.NoError(t, err)
	require.Equal(t, FormatProto, f)
	_, err = ParseFormat("xml")
	require.Error(t, err)
}
