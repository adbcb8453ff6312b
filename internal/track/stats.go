package track

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/heliradar/tracker/internal/model"
)

// SpeedStats summarises the ground speed between consecutive points.
type SpeedStats struct {
	MeanMps   float64 `json:"meanMps"`
	MaxMps    float64 `json:"maxMps"`
	StdDevMps float64 `json:"stdDevMps"`
}

// SegmentSpeeds returns the speed in m/s of every segment of an ordered
// track. Segments with no elapsed time are skipped.
func SegmentSpeeds(ordered []model.Point) ([]float64, error) {
	var speeds []float64
	for i := 1; i < len(ordered); i++ {
		t0, err := ordered[i-1].Time()
		if err != nil {
			return nil, err
		}
		t1, err := ordered[i].Time()
		if err != nil {
			return nil, err
		}
		dt := t1.Sub(t0).Seconds()
		if dt <= 0 {
			continue
		}
		km := Haversine(Position(ordered[i-1]), Position(ordered[i]))
		speeds = append(speeds, km*1000/dt)
	}
	return speeds, nil
}

// Stats computes speed statistics. Empty input yields zero values.
func Stats(speeds []float64) SpeedStats {
	if len(speeds) == 0 {
		return SpeedStats{}
	}
	s := SpeedStats{
		MeanMps: stat.Mean(speeds, nil),
		MaxMps:  floats.Max(speeds),
	}
	if len(speeds) > 1 {
		s.StdDevMps = stat.StdDev(speeds, nil)
	}
	return s
}

// FleetStats aggregates a set of summaries for the admin overview.
type FleetStats struct {
	Active             int     `json:"active"`
	Completed          int     `json:"completed"`
	AvgDurationSeconds float64 `json:"avgDurationSeconds"`
	TotalDistanceKm    float64 `json:"totalDistanceKm"`
}

func Fleet(summaries []Summary) FleetStats {
	var fs FleetStats
	if len(summaries) == 0 {
		return fs
	}
	durations := make([]float64, len(summaries))
	distances := make([]float64, len(summaries))
	for i, s := range summaries {
		if s.Status == Active {
			fs.Active++
		} else {
			fs.Completed++
		}
		durations[i] = s.DurationSeconds
		distances[i] = s.DistanceKm
	}
	fs.AvgDurationSeconds = stat.Mean(durations, nil)
	fs.TotalDistanceKm = floats.Sum(distances)
	return fs
}
