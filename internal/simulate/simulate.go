// Package simulate generates a synthetic drifting flight and posts it to the
// tracker as if it came from a device.
package simulate

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
	"github.com/heliradar/tracker/internal/timeutil"
)

const (
	DefaultInterval = 2 * time.Second

	// Each tick moves between MinStep and MinStep+StepJitter degrees.
	MinStep    = 0.00005
	StepJitter = 0.00005
	// MaxTurn is the full width of the per-tick heading change in radians.
	MaxTurn = 0.1

	IDPrefix = "SIM-"
)

// Sink receives generated points. *client.Client satisfies it.
type Sink interface {
	Ingest(ctx context.Context, v model.Variant, p model.Point) error
}

// Rand is the randomness source; *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Options configure a Simulator. Zero values pick the defaults.
type Options struct {
	Clock    timeutil.Clock
	Rand     Rand
	Interval time.Duration
	// Limit stops Run after that many points; zero runs until cancelled.
	Limit int
}

// Simulator walks a point away from its start with a slowly drifting heading.
type Simulator struct {
	sink     Sink
	clock    timeutil.Clock
	rng      Rand
	interval time.Duration
	limit    int

	id string

	mu      sync.Mutex
	lat     float64
	lng     float64
	heading float64
	sent    int
	failed  int
}

// New returns a simulator starting at start. The flight id is derived from
// the clock's current time in milliseconds.
func New(sink Sink, start orb.Point, opts Options) *Simulator {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	s := &Simulator{
		sink:     sink,
		clock:    opts.Clock,
		rng:      opts.Rand,
		interval: opts.Interval,
		limit:    opts.Limit,
		id:       IDPrefix + strconv.FormatInt(opts.Clock.Now().UnixMilli(), 10),
		lat:      start.Lat(),
		lng:      start.Lon(),
	}
	s.heading = s.rng.Float64() * 2 * math.Pi
	return s
}

// ID is the device id every generated point carries.
func (s *Simulator) ID() string { return s.id }

// Next advances the simulation one tick and returns the new point.
func (s *Simulator) Next() model.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heading += (s.rng.Float64() - 0.5) * MaxTurn
	step := MinStep + s.rng.Float64()*StepJitter
	s.lat += step * math.Cos(s.heading)
	s.lng += step * math.Sin(s.heading)
	return model.Point{
		DeviceID:  s.id,
		Mode:      model.ModeSimulation,
		Latitude:  s.lat,
		Longitude: s.lng,
		Timestamp: model.FormatTimestamp(s.clock.Now()),
	}
}

// Heading returns the current heading in radians.
func (s *Simulator) Heading() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heading
}

// Stats returns how many points were accepted and how many failed to post.
func (s *Simulator) Stats() (sent, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.failed
}

// Run posts a point every interval until ctx ends or the limit is reached.
// Failed posts are logged and do not stop the simulation.
func (s *Simulator) Run(ctx context.Context) error {
	t := s.clock.NewTicker(s.interval)
	defer t.Stop()

	for n := 0; s.limit == 0 || n < s.limit; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
		}
		p := s.Next()
		err := s.sink.Ingest(ctx, model.Device, p)

		s.mu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.sent++
		}
		s.mu.Unlock()
		if err != nil {
			monitoring.Logf("[simulate] %s: post failed: %v", s.id, err)
		}
	}
	return nil
}
