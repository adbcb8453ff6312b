package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
	"github.com/heliradar/tracker/internal/timeutil"
)

// DefaultInterval is how often the poller asks for recent tracks.
const DefaultInterval = 3 * time.Second

// Source returns the recently active tracks of a variant. *client.Client
// satisfies it.
type Source interface {
	Recent(ctx context.Context, v model.Variant) ([]model.Snapshot, error)
}

// Poller periodically reconciles a Board against a Source while enabled.
// Disabling clears the board; a poll that was in flight when the poller was
// disabled is discarded when it returns.
type Poller struct {
	Source   Source
	Board    *Board
	Variant  model.Variant
	Clock    timeutil.Clock
	Interval time.Duration
	// OnChange, if set, is called with every non-empty diff, including the
	// removal of all markers on disable. It runs with the poller locked and
	// must not call back into it.
	OnChange func(Diff)

	mu      sync.Mutex
	enabled bool
	gen     uint64
}

// Enable turns polling on.
func (p *Poller) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		p.enabled = true
		p.gen++
	}
}

// Disable turns polling off and clears the board.
func (p *Poller) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	p.enabled = false
	p.gen++

	if removed := p.Board.Clear(); len(removed) > 0 {
		p.notify(Diff{Removed: removed})
	}
}

// Enabled reports whether polling is on.
func (p *Poller) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Step performs one poll. It does nothing while disabled. Fetch errors are
// returned and leave the board untouched.
func (p *Poller) Step(ctx context.Context) (Diff, error) {
	p.mu.Lock()
	enabled, gen := p.enabled, p.gen
	p.mu.Unlock()
	if !enabled {
		return Diff{}, nil
	}

	snaps, err := p.Source.Recent(ctx, p.Variant)
	if err != nil {
		return Diff{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || p.gen != gen {
		return Diff{}, nil
	}
	d := p.Board.Reconcile(snaps)
	if !d.Empty() && p.OnChange != nil {
		p.OnChange(d)
	}
	return d, nil
}

// Run polls immediately and then every Interval until ctx ends. Errors are
// logged and polling continues.
func (p *Poller) Run(ctx context.Context) error {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	t := clock.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := p.Step(ctx); err != nil && ctx.Err() == nil {
			monitoring.Logf("[fleet] poll %s: %v", p.Variant.Path, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C():
		}
	}
}

func (p *Poller) notify(d Diff) {
	if p.OnChange != nil {
		p.OnChange(d)
	}
}
