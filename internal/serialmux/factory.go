package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// Open returns a mux over the serial port at path, or a DisabledSerialMux
// when path is empty.
func Open(path string, opts PortOptions) (Mux, error) {
	if path == "" {
		return NewDisabledSerialMux(), nil
	}
	return NewRealSerialMux(path, opts)
}

// NewRealSerialMux opens the serial port at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
