package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// MockPort is an in-memory serial port. Lines fed with Feed are returned by
// Read; everything written is captured.
type MockPort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	written  bytes.Buffer
	closed   bool
	WriteErr error
	// ShortWrite, if set, makes Write report one byte fewer than given.
	ShortWrite bool
}

func NewMockPort() *MockPort {
	r, w := io.Pipe()
	return &MockPort{r: r, w: w}
}

// NewMockSerialMux returns a mux over a fresh MockPort.
func NewMockSerialMux() (*SerialMux[*MockPort], *MockPort) {
	p := NewMockPort()
	return NewSerialMux(p), p
}

// Feed makes line (plus CRLF) available to Read. It blocks until read.
func (m *MockPort) Feed(line string) error {
	_, err := io.WriteString(m.w, line+"\r\n")
	return err
}

// EOF ends the read side.
func (m *MockPort) EOF() { _ = m.w.Close() }

func (m *MockPort) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errPortClosed
	}
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	m.written.Write(p)
	if m.ShortWrite && len(p) > 0 {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	_ = m.w.Close()
	return m.r.Close()
}

// Written returns everything written so far.
func (m *MockPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}
