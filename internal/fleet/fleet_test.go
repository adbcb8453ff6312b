package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/timeutil"
)

func snap(id string, lat, lon float64) model.Snapshot {
	return model.Snapshot{ID: id, TripID: id, Latitude: lat, Longitude: lon}
}

func TestReconcile(t *testing.T) {
	b := NewBoard()

	d := b.Reconcile([]model.Snapshot{snap("B", 1, 1), snap("A", 2, 2), snap("", 3, 3), snap("Z", 0, 0)})
	assert.Equal(t, []model.Snapshot{snap("A", 2, 2), snap("B", 1, 1)}, d.Added)
	assert.Empty(t, d.Moved)
	assert.Empty(t, d.Removed)
	assert.Equal(t, 2, b.Len())

	d = b.Reconcile([]model.Snapshot{snap("A", 2, 2), snap("B", 1.5, 1), snap("C", 4, 4)})
	assert.Equal(t, []model.Snapshot{snap("C", 4, 4)}, d.Added)
	assert.Equal(t, []model.Snapshot{snap("B", 1.5, 1)}, d.Moved)
	assert.Empty(t, d.Removed)

	d = b.Reconcile([]model.Snapshot{snap("C", 4, 4)})
	assert.Equal(t, []string{"A", "B"}, d.Removed)
	assert.Equal(t, []model.Snapshot{snap("C", 4, 4)}, b.Markers())

	assert.True(t, b.Reconcile([]model.Snapshot{snap("C", 4, 4)}).Empty())

	assert.Equal(t, []string{"C"}, b.Clear())
	assert.Equal(t, 0, b.Len())
}

type fakeSource struct {
	mu    sync.Mutex
	snaps []model.Snapshot
	err   error
	calls int
	// gate, if set, blocks Recent until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeSource) Recent(ctx context.Context, v model.Variant) ([]model.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	snaps, err := f.snaps, f.err
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	return snaps, err
}

func (f *fakeSource) set(snaps ...model.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = snaps
}

func TestPollerStep(t *testing.T) {
	src := &fakeSource{}
	var diffs []Diff
	p := &Poller{Source: src, Board: NewBoard(), Variant: model.Mobile, OnChange: func(d Diff) { diffs = append(diffs, d) }}
	ctx := context.Background()

	src.set(snap("T1", 1, 1))
	d, err := p.Step(ctx)
	require.NoError(t, err)
	assert.True(t, d.Empty(), "disabled poller must not poll")
	assert.Equal(t, 0, src.calls)

	p.Enable()
	d, err = p.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Added, 1)

	src.set(snap("T1", 1, 2))
	d, err = p.Step(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Moved, 1)

	src.err = errors.New("boom")
	_, err = p.Step(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, p.Board.Len(), "failed poll leaves markers alone")

	p.Disable()
	assert.Equal(t, 0, p.Board.Len())
	require.Len(t, diffs, 3)
	assert.Equal(t, []string{"T1"}, diffs[2].Removed)
}

func TestPollerOnChangeRunsLocked(t *testing.T) {
	src := &fakeSource{}
	src.set(snap("T1", 1, 1))
	p := &Poller{Source: src, Board: NewBoard(), Variant: model.Mobile}

	var lockedCalls int
	p.OnChange = func(Diff) {
		// TryLock fails while the poller holds its own lock
		if !p.mu.TryLock() {
			lockedCalls++
			return
		}
		p.mu.Unlock()
	}
	p.Enable()
	_, err := p.Step(context.Background())
	require.NoError(t, err)
	p.Disable()
	assert.Equal(t, 2, lockedCalls, "poll and disable both notify under the lock")
}

func TestPollerDropsLateResultAfterDisable(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	src.set(snap("T1", 1, 1))
	p := &Poller{Source: src, Board: NewBoard(), Variant: model.Mobile}
	p.Enable()

	done := make(chan Diff, 1)
	go func() {
		d, _ := p.Step(context.Background())
		done <- d
	}()

	<-src.entered
	p.Disable()
	close(src.gate)

	d := <-done
	assert.True(t, d.Empty())
	assert.Equal(t, 0, p.Board.Len())
}

func TestPollerRun(t *testing.T) {
	src := &fakeSource{entered: make(chan struct{}, 8)}
	src.set(snap("T1", 1, 1))
	clock := timeutil.NewMockClock(time.Now())
	p := &Poller{Source: src, Board: NewBoard(), Variant: model.Mobile, Clock: clock}
	p.Enable()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-src.entered
	clock.BlockUntil(1)
	src.set(snap("T2", 2, 2))
	clock.Advance(DefaultInterval)
	<-src.entered

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []model.Snapshot{snap("T2", 2, 2)}, p.Board.Markers())
}
