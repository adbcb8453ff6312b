package track

import (
	"context"
	"iter"
	"time"

	"github.com/paulmach/orb"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/timeutil"
)

// Frame is one step of a replay: the point just reached and the path drawn
// so far, including it.
type Frame struct {
	Index int
	Point model.Point
	Path  orb.LineString
}

// Replay returns the frames of a track in timestamp order. The sequence is
// lazy and may be ranged over any number of times.
func Replay(points []model.Point) iter.Seq[Frame] {
	ordered := Ordered(points)
	return func(yield func(Frame) bool) {
		path := make(orb.LineString, 0, len(ordered))
		for i, p := range ordered {
			path = append(path, Position(p))
			if !yield(Frame{Index: i, Point: p, Path: path}) {
				return
			}
		}
	}
}

// Play hands each frame of seq to draw, waiting delay on clock before every
// frame. Pacing ignores the point timestamps. Play returns ctx.Err() if the
// context ends first.
func Play(ctx context.Context, clock timeutil.Clock, delay time.Duration, seq iter.Seq[Frame], draw func(Frame)) error {
	for f := range seq {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(delay):
		}
		draw(f)
	}
	return nil
}
