// Package track derives summaries, paths and replays from the ordered points
// of one track.
package track

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/heliradar/tracker/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance between a and b in kilometres.
// Points are orb order: [longitude, latitude].
func Haversine(a, b orb.Point) float64 {
	lat1, lat2 := radians(a.Lat()), radians(b.Lat())
	dLat := lat2 - lat1
	dLon := radians(b.Lon() - a.Lon())

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	// rounding can push h past 1 for antipodal points
	h = min(h, 1)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// PathDistance sums the haversine distance between consecutive vertices.
func PathDistance(path orb.LineString) float64 {
	var km float64
	for i := 1; i < len(path); i++ {
		km += Haversine(path[i-1], path[i])
	}
	return km
}

// Position returns p as an orb point.
func Position(p model.Point) orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// Path returns the vertices of points in the given order.
func Path(points []model.Point) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = Position(p)
	}
	return ls
}

// Ordered returns a copy of points sorted by timestamp. Points whose
// timestamps do not parse keep their relative order after the valid ones.
func Ordered(points []model.Point) []model.Point {
	out := append([]model.Point(nil), points...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, ei := out[i].Time()
		tj, ej := out[j].Time()
		switch {
		case ei != nil:
			return false
		case ej != nil:
			return true
		}
		return ti.Before(tj)
	})
	return out
}
