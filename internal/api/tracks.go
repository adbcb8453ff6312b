package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/heliradar/tracker/internal/chart"
	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/track"
)

// trackPoints loads the track named by ?id= (and optionally ?key= and
// ?variant=). It writes the error response itself and returns ok=false on
// failure.
func (s *Server) trackPoints(w http.ResponseWriter, r *http.Request) (string, []model.Point, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return "", nil, false
	}
	v, ok := variantParam(w, r)
	if !ok {
		return "", nil, false
	}
	q := r.URL.Query()
	id := q.Get("id")
	if id == "" {
		httputil.BadRequest(w, "missing id")
		return "", nil, false
	}
	key := v.TrackKey
	if k := q.Get("key"); k != "" {
		key = model.Key(k)
		if !key.Valid() {
			httputil.BadRequest(w, "invalid key")
			return "", nil, false
		}
	}

	points, err := s.store.History(r.Context(), v.Collection, key, id)
	if err != nil {
		internalError(w, r, err)
		return "", nil, false
	}
	if len(points) == 0 {
		httputil.NotFound(w, "track not found")
		return "", nil, false
	}
	return id, points, true
}

func (s *Server) handleTrackGeoJSON(w http.ResponseWriter, r *http.Request) {
	id, points, ok := s.trackPoints(w, r)
	if !ok {
		return
	}
	b, err := json.Marshal(track.Feature(id, points))
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_, _ = w.Write(b)
}

func (s *Server) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	id, points, ok := s.trackPoints(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := chart.HTML(&buf, id, points); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleTrackPlot(w http.ResponseWriter, r *http.Request) {
	id, points, ok := s.trackPoints(w, r)
	if !ok {
		return
	}
	p, err := chart.Plot(id, points)
	if err != nil {
		internalError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := chart.WritePNG(&buf, p); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
