package detector

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes the serial connection to a detector that streams
// the line protocol over UART.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and applies defaults for unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial opens a
// port with.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
	}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// PortOpener opens a serial device. Replaced in tests.
type PortOpener func(path string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openSerialPort(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(path, mode)
}

// SerialSource is a live LineSource reading a serial device.
type SerialSource struct {
	*LineSource
	Path string
	Opts PortOptions
}

// OpenSerial opens the device at path and returns a live source over it.
// The end of the device stream is reported as ErrUnexpectedEnd.
func OpenSerial(path string, opts PortOptions) (*SerialSource, error) {
	return openSerial(path, opts, openSerialPort)
}

func openSerial(path string, opts PortOptions, open PortOpener) (*SerialSource, error) {
	norm, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := norm.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return &SerialSource{LineSource: NewLiveLineSource(port), Path: path, Opts: norm}, nil
}
