package detector

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/monitoring"
	"github.com/banshee-data/beat.report/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	defer monitoring.SetLogger(log.Printf)
	m.Run()
}

func TestParseLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line     string
		want     beat.RawObservation
		wantKind LineKind
		wantErr  bool
	}{
		{"1.25,1", beat.RawObservation{StreamTime: 1.25, Type: beat.Beat}, LineEvent, false},
		{" 3.5 , 2 ", beat.RawObservation{StreamTime: 3.5, Type: beat.Downbeat}, LineEvent, false},
		{"4.0,2.0", beat.RawObservation{StreamTime: 4, Type: beat.Downbeat}, LineEvent, false},
		{`{"t":0.75,"type":1}`, beat.RawObservation{StreamTime: 0.75, Type: beat.Beat}, LineEvent, false},
		{"", beat.RawObservation{}, LineBoundary, false},
		{"   ", beat.RawObservation{}, LineBoundary, false},
		{"---", beat.RawObservation{}, LineBoundary, false},
		{"# comment", beat.RawObservation{}, LineComment, false},
		{"1.0", beat.RawObservation{}, LineEvent, true},
		{"1.0,1,3", beat.RawObservation{}, LineEvent, true},
		{"abc,1", beat.RawObservation{}, LineEvent, true},
		{"1.0,x", beat.RawObservation{}, LineEvent, true},
		{"1.0,3", beat.RawObservation{}, LineEvent, true},
		{"1.0,1.5", beat.RawObservation{}, LineEvent, true},
		{"NaN,1", beat.RawObservation{}, LineEvent, true},
		{"+Inf,1", beat.RawObservation{}, LineEvent, true},
		{`{"t":1}`, beat.RawObservation{}, LineEvent, true},
		{`{"t":`, beat.RawObservation{}, LineEvent, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, kind, err := ParseLine(tt.line)
			assert.Equal(t, tt.wantKind, kind)
			if tt.wantErr {
				var pe *ParseError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, strings.TrimSpace(tt.line), pe.Text)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	t.Parallel()
	err := &ParseError{Line: 3, Text: "x", Err: errBadFlag}
	assert.Equal(t, `line 3: cannot parse "x": flag must be 1 (beat) or 2 (downbeat)`, err.Error())
	assert.ErrorIs(t, err, errBadFlag)
}

func collect(t *testing.T, src Source) ([][]beat.RawObservation, error) {
	t.Helper()
	var out [][]beat.RawObservation
	for {
		b, err := src.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

func TestLineSource_Batches(t *testing.T) {
	t.Parallel()
	input := "0.5,1\n1.0,1\n\n\n---\n1.0,1\nbogus\n1.5,2\n---\n2.0,1"
	src := NewLineSource(strings.NewReader(input))
	got, err := collect(t, src)
	require.ErrorIs(t, err, io.EOF)

	want := [][]beat.RawObservation{
		{{StreamTime: 0.5, Type: beat.Beat}, {StreamTime: 1.0, Type: beat.Beat}},
		{{StreamTime: 1.0, Type: beat.Beat}, {StreamTime: 1.5, Type: beat.Downbeat}},
		{{StreamTime: 2.0, Type: beat.Beat}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(1), src.ParseErrors())
	assert.Equal(t, uint64(5), src.Events())
	require.NotNil(t, src.LastParseError())
	assert.Equal(t, 7, src.LastParseError().Line)
}

func TestLiveLineSource_EndIsUnexpected(t *testing.T) {
	t.Parallel()
	src := NewLiveLineSource(strings.NewReader("1,1\n"))
	b, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, b, 1)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("usb unplugged") }

func TestLineSource_ReadError(t *testing.T) {
	t.Parallel()
	_, err := NewLineSource(failingReader{}).Next(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "usb unplugged")
}

func TestLineSource_NextHonoursContext(t *testing.T) {
	t.Parallel()
	r, w := io.Pipe()
	defer w.Close()
	src := NewLineSource(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}

func TestSliceSource(t *testing.T) {
	t.Parallel()
	src := &SliceSource{Batches: [][]beat.RawObservation{{{StreamTime: 1, Type: beat.Beat}}}}
	got, err := collect(t, src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, got, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = (&SliceSource{}).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenFixture_Unpaced(t *testing.T) {
	t.Parallel()
	src, err := OpenFixture("testdata/session.txt", false, nil)
	require.NoError(t, err)
	defer src.Close()

	got, err := collect(t, src)
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 3)
	assert.Equal(t, []beat.RawObservation{{StreamTime: 2, Type: beat.Beat}, {StreamTime: 2.5, Type: beat.Beat}}, got[2])
}

func TestOpenFixture_Missing(t *testing.T) {
	t.Parallel()
	_, err := OpenFixture("testdata/missing.txt", false, nil)
	assert.Error(t, err)
}

func TestFixtureSource_Paced(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	src := NewFixtureSource(NewLineSource(strings.NewReader("1,1\n---\n3,1\n")), true, clock)

	b, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, b[0].StreamTime)

	got := make(chan []beat.RawObservation, 1)
	go func() {
		b, _ := src.Next(context.Background())
		got <- b
	}()

	select {
	case <-got:
		t.Fatal("paced batch released early")
	case <-time.After(20 * time.Millisecond):
	}

	assert.Eventually(t, func() bool {
		clock.Advance(500 * time.Millisecond)
		select {
		case b := <-got:
			return assert.Equal(t, 3.0, b[0].StreamTime)
		default:
			return false
		}
	}, time.Second, time.Millisecond)
	assert.False(t, clock.Now().Before(time.Unix(1002, 0)))
}

func TestPortOptions_Normalize(t *testing.T) {
	t.Parallel()
	got, err := PortOptions{Parity: "even"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "E"}, got)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	t.Parallel()
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 9600, DataBits: 8, StopBits: serial.TwoStopBits, Parity: serial.OddParity}, mode)

	_, err = PortOptions{DataBits: 4}.SerialMode()
	assert.Error(t, err)
}

type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func TestOpenSerial_UsesOpener(t *testing.T) {
	t.Parallel()
	port := &fakePort{Reader: strings.NewReader("0.5,1\n---\n")}
	var gotPath string
	var gotMode *serial.Mode
	src, err := openSerial("/dev/ttyUSB0", PortOptions{}, func(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
		gotPath, gotMode = path, mode
		return port, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)

	b, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, b, 1)
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	require.NoError(t, src.Close())
	assert.True(t, port.closed)
}

func TestOpenSerial_Errors(t *testing.T) {
	t.Parallel()
	_, err := openSerial("/dev/x", PortOptions{Parity: "?"}, nil)
	assert.Error(t, err)

	_, err = openSerial("/dev/x", PortOptions{}, func(string, *serial.Mode) (io.ReadWriteCloser, error) {
		return nil, errors.New("permission denied")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open serial port /dev/x")
}
