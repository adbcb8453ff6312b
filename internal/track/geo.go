package track

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/heliradar/tracker/internal/model"
)

// HeatIntensity is the weight given to every point on the heatmap layer.
const HeatIntensity = 0.4

// Heatmap returns [lat, lon, intensity] triples for a heat layer.
func Heatmap(points []model.Point) [][3]float64 {
	out := make([][3]float64, len(points))
	for i, p := range points {
		out[i] = [3]float64{p.Latitude, p.Longitude, HeatIntensity}
	}
	return out
}

// Feature returns the track as a GeoJSON feature: a LineString, or a Point
// when the track has a single position. Returns nil for an empty track.
func Feature(id string, points []model.Point) *geojson.Feature {
	if len(points) == 0 {
		return nil
	}
	ordered := Ordered(points)
	path := Path(ordered)

	var g orb.Geometry = path
	if len(path) == 1 {
		g = path[0]
	}
	f := geojson.NewFeature(g)
	f.ID = id
	f.Properties["track_id"] = id
	f.Properties["points"] = len(ordered)
	f.Properties["distance_km"] = PathDistance(path)
	f.Properties["start"] = ordered[0].Timestamp
	f.Properties["end"] = ordered[len(ordered)-1].Timestamp
	if agent := ordered[0].AgentID; agent != "" {
		f.Properties["agent_id"] = agent
		f.Properties["stroke"] = AgentColor(agent)
	}
	return f
}
