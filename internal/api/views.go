package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
	"github.com/heliradar/tracker/internal/track"
	"github.com/heliradar/tracker/internal/units"
	"github.com/heliradar/tracker/internal/version"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := map[string]string{
		"status":  "ok",
		"version": version.Version,
		"git_sha": version.GitSHA,
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		monitoring.Logf("[api] health: %v", err)
		resp["status"] = "unavailable"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	httputil.WriteJSONOK(w, resp)
}

// variantParam reads ?variant=, defaulting to the device variant.
func variantParam(w http.ResponseWriter, r *http.Request) (model.Variant, bool) {
	v, ok := model.VariantByName(r.URL.Query().Get("variant"))
	if !ok {
		httputil.BadRequest(w, "unknown variant")
	}
	return v, ok
}

func (s *Server) recent(ctx context.Context, v model.Variant, window time.Duration) ([]model.Snapshot, error) {
	points, err := s.store.Recent(ctx, v.Collection, v.TrackKey, s.now().Add(-window))
	if err != nil {
		return nil, err
	}
	snaps := make([]model.Snapshot, len(points))
	for i, p := range points {
		snaps[i] = model.SnapshotOf(p, v.TrackKey)
	}
	return snaps, nil
}

// groupTracks splits a collection into tracks keyed by v.TrackOf. Points
// that belong to no track are dropped.
func groupTracks(v model.Variant, points []model.Point) map[string][]model.Point {
	tracks := make(map[string][]model.Point)
	for _, p := range points {
		if id := v.TrackOf(p); id != "" {
			tracks[id] = append(tracks[id], p)
		}
	}
	return tracks
}

type flightsResponse struct {
	Flights []track.Summary  `json:"flights"`
	Stats   track.FleetStats `json:"stats"`
}

// handleFlights summarises every track of a collection, newest first.
func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	v, ok := variantParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := track.Options{Window: s.opts.DashboardWindow, Location: s.opts.Location, DistanceUnit: units.KM}
	if ws := q.Get("window"); ws != "" {
		d, err := time.ParseDuration(ws)
		if err != nil || d <= 0 {
			httputil.BadRequest(w, "invalid window")
			return
		}
		opts.Window = d
	}
	if u := q.Get("units"); u != "" {
		if !units.IsValidDistance(u) {
			httputil.BadRequest(w, "invalid units")
			return
		}
		opts.DistanceUnit = u
	}
	if sp := q.Get("speed"); sp != "" {
		if !units.IsValidSpeed(sp) {
			httputil.BadRequest(w, "invalid speed")
			return
		}
		opts.SpeedUnit = sp
	}
	if tz := q.Get("tz"); tz != "" {
		loc, err := units.Location(tz)
		if err != nil {
			httputil.BadRequest(w, "invalid tz")
			return
		}
		opts.Location = loc
	}

	points, err := s.store.All(r.Context(), v.Collection, 0)
	if err != nil {
		internalError(w, r, err)
		return
	}
	now := s.now()
	summaries := make([]track.Summary, 0)
	for id, pts := range groupTracks(v, points) {
		sum, err := track.Summarize(id, pts, now, opts)
		if err != nil {
			monitoring.Logf("[api] flights: skipping track %s: %v", id, err)
			continue
		}
		summaries = append(summaries, sum)
	}
	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].StartedAt.After(summaries[j].StartedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	httputil.WriteJSONOK(w, flightsResponse{Flights: summaries, Stats: track.Fleet(summaries)})
}

func (s *Server) handleHeatmap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	v, ok := variantParam(w, r)
	if !ok {
		return
	}
	points, err := s.store.All(r.Context(), v.Collection, 0)
	if err != nil {
		internalError(w, r, err)
		return
	}
	httputil.WriteJSONOK(w, track.Heatmap(points))
}
