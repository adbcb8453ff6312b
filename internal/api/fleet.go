package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/heliradar/tracker/internal/feed"
	"github.com/heliradar/tracker/internal/geoindex"
	"github.com/heliradar/tracker/internal/httputil"
)

// handleVehiclePositions serves the recent snapshots as a GTFS-Realtime
// feed. ?format=json selects the protojson encoding.
func (s *Server) handleVehiclePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	v, ok := variantParam(w, r)
	if !ok {
		return
	}
	snaps, err := s.recent(r.Context(), v, s.opts.FleetWindow)
	if err != nil {
		internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	ct, err := feed.Write(&buf, feed.VehiclePositions(snaps, s.now()), r.URL.Query().Get("format"))
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ct)
	_, _ = w.Write(buf.Bytes())
}

// handleNearby lists live tracks within radius_km of lat/lon.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.opts.Nearby == nil {
		httputil.NotFound(w, "geo index not configured")
		return
	}
	v, ok := variantParam(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var vals [3]float64
	for i, name := range []string{"lat", "lon", "radius_km"} {
		f, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			httputil.BadRequest(w, "invalid "+name)
			return
		}
		vals[i] = f
	}
	if vals[2] <= 0 {
		httputil.BadRequest(w, "invalid radius_km")
		return
	}
	limit := 0
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	found, err := s.opts.Nearby.Search(r.Context(), v, vals[0], vals[1], vals[2], limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if found == nil {
		found = []geoindex.Nearby{}
	}
	httputil.WriteJSONOK(w, found)
}
