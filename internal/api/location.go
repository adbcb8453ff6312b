package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
)

type statusResponse struct {
	Status string `json:"status"`
	Count  *int   `json:"count,omitempty"`
}

func (s *Server) variantHandler(v model.Variant) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.query(w, r, v)
		case http.MethodPost:
			s.ingest(w, r, v)
		default:
			httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	}
}

// ingest accepts a single point object or {"points": [...]}.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, v model.Variant) {
	body, err := httputil.ReadBody(w, r)
	if err != nil {
		httputil.BadRequest(w, msgInvalidFormat)
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		httputil.BadRequest(w, msgInvalidFormat)
		return
	}

	if batch, ok := raw["points"]; ok {
		s.ingestBatch(w, r, v, batch)
		return
	}

	p, err := model.DecodePoint(raw)
	if err == nil {
		err = s.Ingest(r.Context(), v, p)
	}
	if err != nil {
		s.writeIngestError(w, r, err)
		return
	}
	httputil.WriteJSONOK(w, statusResponse{Status: "saved"})
}

func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request, v model.Variant, batch json.RawMessage) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(batch, &items); err != nil || items == nil {
		httputil.BadRequest(w, msgInvalidFormat)
		return
	}
	if len(items) == 0 {
		httputil.WriteJSONOK(w, statusResponse{Status: "empty_batch"})
		return
	}

	points := make([]model.Point, len(items))
	for i, item := range items {
		if item == nil {
			httputil.BadRequest(w, msgInvalidFormat)
			return
		}
		p, err := model.DecodePoint(item)
		if err != nil {
			s.writeIngestError(w, r, err)
			return
		}
		points[i] = p
	}
	if err := s.IngestBatch(r.Context(), v, points); err != nil {
		s.writeIngestError(w, r, err)
		return
	}
	n := len(points)
	httputil.WriteJSONOK(w, statusResponse{Status: "batch_saved", Count: &n})
}

func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, err error) {
	if msg, ok := clientError(err); ok {
		httputil.BadRequest(w, msg)
		return
	}
	internalError(w, r, err)
}

// query dispatches on the query parameters; the first match wins:
// recent, track id, agent id, then the distinct track ids.
func (s *Server) query(w http.ResponseWriter, r *http.Request, v model.Variant) {
	q := r.URL.Query()
	ctx := r.Context()
	latest := q.Get("latest") == "true"

	if q.Get("recent") == "true" {
		window := s.opts.FleetWindow
		if ws := q.Get("window"); ws != "" {
			d, err := time.ParseDuration(ws)
			if err != nil || d <= 0 {
				httputil.BadRequest(w, "invalid window")
				return
			}
			window = d
		}
		snaps, err := s.recent(ctx, v, window)
		if err != nil {
			internalError(w, r, err)
			return
		}
		httputil.WriteJSONOK(w, snaps)
		return
	}

	if id := q.Get(string(v.TrackKey)); id != "" {
		// Trips always return their full history; only the device variant
		// narrows to the latest point.
		s.history(w, r, v.Collection, v.TrackKey, id, latest && v.AgentKey == "")
		return
	}

	if v.AgentKey != "" {
		if id := q.Get(string(v.AgentKey)); id != "" {
			s.history(w, r, v.Collection, v.AgentKey, id, latest)
			return
		}
	}

	ids, err := s.store.Distinct(ctx, v.Collection, v.TrackKey)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteJSONOK(w, ids)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, c model.Collection, key model.Key, id string, latest bool) {
	if latest {
		p, err := s.store.Latest(r.Context(), c, key, id)
		if err != nil {
			internalError(w, r, err)
			return
		}
		httputil.WriteJSONOK(w, p)
		return
	}
	points, err := s.store.History(r.Context(), c, key, id)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if points == nil {
		points = []model.Point{}
	}
	httputil.WriteJSONOK(w, points)
}
