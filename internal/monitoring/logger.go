// Package monitoring routes diagnostic output from the store backends, the
// fleet poller and the GPS recorder through one replaceable function.
package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil discards all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Recorder collects formatted log lines. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *Recorder) Logf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

// Lines returns a copy of everything logged so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Capture points Logf at a new Recorder and returns it with a function that
// restores the previous logger.
func Capture() (*Recorder, func()) {
	prev := Logf
	r := &Recorder{}
	Logf = r.Logf
	return r, func() { Logf = prev }
}
