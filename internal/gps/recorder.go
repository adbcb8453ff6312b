package gps

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
)

// Sink stores a point. The API server and *client.Client satisfy it.
type Sink interface {
	Ingest(ctx context.Context, v model.Variant, p model.Point) error
}

// Lines is the subscription side of a serialmux.Mux.
type Lines interface {
	Subscribe() (string, chan string)
	Unsubscribe(id string)
}

// Recorder stores every valid RMC fix as a live point for one device.
type Recorder struct {
	Lines    Lines
	Sink     Sink
	DeviceID string
	// MinInterval drops fixes closer than this to the previous recorded one.
	MinInterval time.Duration

	mu       sync.Mutex
	last     time.Time
	recorded int
	dropped  int
}

// Stats returns the number of recorded and dropped sentences.
func (r *Recorder) Stats() (recorded, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded, r.dropped
}

// Run records fixes until ctx ends or the line channel is closed.
func (r *Recorder) Run(ctx context.Context) error {
	id, lines := r.Lines.Subscribe()
	defer r.Lines.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if _, err := r.Handle(ctx, line); err != nil {
				monitoring.Logf("[gps] %s: %v", r.DeviceID, err)
			}
		}
	}
}

// Handle records line if it is a usable RMC fix. It reports whether a point
// was stored. Other sentence types and fixes without a position lock are
// ignored without error.
func (r *Recorder) Handle(ctx context.Context, line string) (bool, error) {
	fix, err := ParseRMC(line)
	switch {
	case errors.Is(err, ErrNotRMC), errors.Is(err, ErrNoFix):
		return false, nil
	case err != nil:
		r.drop()
		return false, err
	}

	r.mu.Lock()
	if r.MinInterval > 0 && !r.last.IsZero() && fix.Time.Sub(r.last) < r.MinInterval {
		r.dropped++
		r.mu.Unlock()
		return false, nil
	}
	r.mu.Unlock()

	p := model.Point{
		DeviceID:  r.DeviceID,
		Mode:      model.ModeLive,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Timestamp: model.FormatTimestamp(fix.Time),
		Extra: map[string]any{
			"speed_kn": fix.SpeedKnots,
			"course":   fix.Course,
		},
	}
	if err := r.Sink.Ingest(ctx, model.Device, p); err != nil {
		r.drop()
		return false, err
	}

	r.mu.Lock()
	r.last = fix.Time
	r.recorded++
	r.mu.Unlock()
	return true, nil
}

func (r *Recorder) drop() {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}
