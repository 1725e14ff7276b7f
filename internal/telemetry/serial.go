package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.bug.st/serial"
)

// SerialOptions describes the UART link to the robot controller.
type SerialOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// Normalize validates the options and fills in defaults (115200 8N1).
func (o SerialOptions) Normalize() (SerialOptions, error) {
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
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	return opts, nil
}

// Mode converts the options for serial.Open.
func (o SerialOptions) Mode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}

	// serial.StopBits values are not the bit counts (OneStopBit is 0).
	switch opts.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// serialLine is the JSON object written per record, one per line.
type serialLine struct {
	X         float64 `json:"position_x"`
	Y         float64 `json:"position_y"`
	Yaw       float64 `json:"yaw"`
	Certainty float64 `json:"certainty"`
	TimeMs    int64   `json:"t_ms"`
}

// SerialSink writes each record as a newline-terminated JSON object.
type SerialSink struct {
	name string

	mu   sync.Mutex
	port io.WriteCloser
	enc  *json.Encoder
}

// OpenSerialSink opens the UART at path.
func OpenSerialSink(path string, opts SerialOptions) (*SerialSink, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	logs.Diagf("serial telemetry on %s at %d baud", path, mode.BaudRate)
	return NewSerialSink(path, port), nil
}

// NewSerialSink writes to an already open port.
func NewSerialSink(name string, port io.WriteCloser) *SerialSink {
	return &SerialSink{name: name, port: port, enc: json.NewEncoder(port)}
}

// Publish implements Sink.
func (s *SerialSink) Publish(ctx context.Context, r Record) error {
	line := serialLine{X: r.X, Y: r.Y, Yaw: r.Yaw, Certainty: r.Certainty, TimeMs: r.Timestamp.UnixMilli()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("%w: serial %s closed", ErrSinkUnavailable, s.name)
	}
	if err := s.enc.Encode(line); err != nil {
		return fmt.Errorf("%w: serial %s: %w", ErrSinkUnavailable, s.name, err)
	}
	return nil
}

// Close closes the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
