package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the NMEA 0183 standard rate most GPS receivers ship with.
const DefaultBaudRate = 9600

// PortOptions describes how to open a serial port.
type PortOptions struct {
	BaudRate int    `yaml:"baud_rate" json:"baud_rate" validate:"omitempty,min=300,max=921600"`
	DataBits int    `yaml:"data_bits" json:"data_bits" validate:"omitempty,min=5,max=8"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits" validate:"omitempty,oneof=1 2"`
	Parity   string `yaml:"parity" json:"parity"`
}

// Normalize fills defaults (9600 8N1) and validates the result.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("invalid stop bits %d: must be 1 or 2", o.StopBits)
	}
	switch p := strings.ToUpper(strings.TrimSpace(o.Parity)); p {
	case "", "N", "NONE":
		o.Parity = "N"
	case "E", "EVEN":
		o.Parity = "E"
	case "O", "ODD":
		o.Parity = "O"
	default:
		return o, fmt.Errorf("unsupported parity %q: expected N, E or O", o.Parity)
	}
	return o, nil
}

// SerialMode converts the options for serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits, StopBits: serial.OneStopBit}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
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
