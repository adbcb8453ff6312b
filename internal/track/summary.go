package track

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/units"
)

var ErrEmptyTrack = errors.New("track has no points")

// Status classifies a track by the age of its newest point.
type Status string

const (
	Active    Status = "ACTIVE"
	Completed Status = "COMPLETED"
)

// Recency windows used by the different views.
const (
	FleetWindow     = 5 * time.Minute
	DashboardWindow = 15 * time.Second
)

// Replay pacing per view.
const (
	HistoryReplayDelay = 120 * time.Millisecond
	FleetReplayDelay   = 100 * time.Millisecond
	AdminReplayDelay   = 80 * time.Millisecond
)

// UnknownAgent labels tracks whose first point carries no agent id.
const UnknownAgent = "Unknown"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Summary describes one track for the history and admin views.
type Summary struct {
	ID              string     `json:"id"`
	AgentID         string     `json:"agentId"`
	Date            string     `json:"date"`
	StartTime       string     `json:"startTime"`
	EndTime         string     `json:"endTime"`
	Start           Coord      `json:"start"`
	End             Coord      `json:"end"`
	Duration        string     `json:"duration"`
	DurationSeconds float64    `json:"durationSeconds"`
	Distance        string     `json:"distance"`
	DistanceKm      float64    `json:"distanceKm"`
	Status          Status     `json:"status"`
	Color           string     `json:"color"`
	Points          int        `json:"points"`
	BBox            [4]float64 `json:"bbox"`
	Speed           SpeedStats `json:"speed"`
	MaxSpeed        string     `json:"maxSpeed"`

	StartedAt time.Time `json:"-"`
	EndedAt   time.Time `json:"-"`
}

// Options select the view-specific parts of a summary.
type Options struct {
	Window   time.Duration
	Location *time.Location
	// DistanceUnit is one of the units package distance units; empty is km.
	DistanceUnit string
	// SpeedUnit labels MaxSpeed; empty is km/h.
	SpeedUnit string
}

// DurationLabel renders d as "{m}m {s}s" from one minute upwards and as
// "{s}s" below that. Fractions of a second are dropped.
func DurationLabel(d time.Duration) string {
	total := int64(d / time.Second)
	if total >= 60 {
		return fmt.Sprintf("%dm %ds", total/60, total%60)
	}
	return fmt.Sprintf("%ds", total)
}

// StatusAt classifies a track whose newest point was recorded at last.
func StatusAt(last, now time.Time, window time.Duration) Status {
	if now.Sub(last) < window {
		return Active
	}
	return Completed
}

// Summarize derives the summary of one track. Points may arrive in any
// order; they are sorted by timestamp first.
func Summarize(id string, points []model.Point, now time.Time, opts Options) (Summary, error) {
	if len(points) == 0 {
		return Summary{}, ErrEmptyTrack
	}
	if opts.Window <= 0 {
		opts.Window = FleetWindow
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SpeedUnit == "" {
		opts.SpeedUnit = units.KMPH
	}

	ordered := Ordered(points)
	first, last := ordered[0], ordered[len(ordered)-1]
	start, err := first.Time()
	if err != nil {
		return Summary{}, err
	}
	end, err := last.Time()
	if err != nil {
		return Summary{}, err
	}

	path := Path(ordered)
	km := PathDistance(path)
	bound := path.Bound()

	agent := first.AgentID
	if agent == "" {
		agent = UnknownAgent
	}
	speeds, err := SegmentSpeeds(ordered)
	if err != nil {
		return Summary{}, err
	}

	stats := Stats(speeds)
	localStart, localEnd := start.In(opts.Location), end.In(opts.Location)
	return Summary{
		ID:              id,
		AgentID:         agent,
		Date:            localStart.Format("2006-01-02"),
		StartTime:       localStart.Format("15:04:05"),
		EndTime:         localEnd.Format("15:04:05"),
		Start:           Coord{Lat: first.Latitude, Lng: first.Longitude},
		End:             Coord{Lat: last.Latitude, Lng: last.Longitude},
		Duration:        DurationLabel(end.Sub(start)),
		DurationSeconds: end.Sub(start).Seconds(),
		Distance:        units.FormatDistance(km, opts.DistanceUnit),
		DistanceKm:      km,
		Status:          StatusAt(end, now, opts.Window),
		Color:           AgentColor(agent),
		Points:          len(ordered),
		BBox:            bbox(bound),
		Speed:           stats,
		MaxSpeed:        units.FormatSpeed(stats.MaxMps, opts.SpeedUnit),
		StartedAt:       start,
		EndedAt:         end,
	}, nil
}

func bbox(b orb.Bound) [4]float64 {
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}
