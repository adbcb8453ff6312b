// Package serialmux fans the lines read from one serial device, such as a
// GPS receiver, out to any number of subscribers and serialises writes back
// to it.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"
)

var ErrWriteFailed = errors.New("short write to serial port")

// SubscriberBuffer is the number of lines buffered per subscriber. Lines
// arriving while a subscriber's buffer is full are dropped for that
// subscriber only.
const SubscriberBuffer = 32

// SerialPorter is the part of a serial port the mux uses.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Mux is implemented by SerialMux and DisabledSerialMux.
type Mux interface {
	// Subscribe returns an id and a channel that receives every line read
	// after the call. The channel is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(id string)
	SendCommand(command string) error
	// Monitor reads lines until ctx ends, the port reaches EOF or Close is
	// called.
	Monitor(ctx context.Context) error
	Close() error
	// AttachAdminRoutes mounts the tail and send-command endpoints on the
	// tsweb debugger at /debug/.
	AttachAdminRoutes(mux *http.ServeMux)
}

// SerialMux multiplexes a single port of type T.
type SerialMux[T SerialPorter] struct {
	port T

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	closing      bool

	commandMu sync.Mutex
}

func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, SubscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand writes command terminated by CRLF, the NMEA line ending.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	command = strings.TrimRight(command, "\r\n") + "\r\n"
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks on the port, so it runs apart from the select below.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- strings.TrimRight(scan.Text(), "\r"):
			case <-ctx.Done():
				scanErr <- ctx.Err()
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				err := <-scanErr
				if s.isClosing() {
					return nil
				}
				return err
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return s.closing
}

// broadcast reports false once the mux is closing.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		return false
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
	return true
}

func (s *SerialMux[T]) Close() error {
	s.subscriberMu.Lock()
	s.closing = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	attachAdminRoutes(mux, s)
}

func attachAdminRoutes(mux *http.ServeMux, m Mux) {
	debug := tsweb.Debugger(mux)
	debug.HandleSilentFunc("serial-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "missing command", http.StatusBadRequest)
			return
		}
		if err := m.SendCommand(command); err != nil {
			http.Error(w, "failed to write command", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "wrote %q\n", command)
	})
	debug.Handle("serial-tail", "stream lines from the serial device (SSE)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tail(w, r, m)
	}))
}

func tail(w http.ResponseWriter, r *http.Request, m Mux) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)

	_, _ = io.WriteString(w, ": ping\n\n")
	flusher.Flush()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", line); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
