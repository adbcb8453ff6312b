package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/heliradar/tracker/internal/feed"
	"github.com/heliradar/tracker/internal/geoindex"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/store"
	"github.com/heliradar/tracker/internal/track"
	"github.com/heliradar/tracker/internal/version"
)

func TestHealth(t *testing.T) {
	_, _, h := setupTestServer(t, Options{})
	w := doRequest(t, h, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	want := map[string]string{"status": "ok", "version": version.Version, "git_sha": version.GitSHA}
	assert.Equal(t, want, decodeBody[map[string]string](t, w))

	down := NewServer(failingStore{}, Options{}).ServeMux()
	w = doRequest(t, down, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decodeBody[map[string]string](t, w)["status"])
}

type flightsBody struct {
	Flights []track.Summary  `json:"flights"`
	Stats   track.FleetStats `json:"stats"`
}

func seedFlights(t *testing.T, s store.Store) {
	t.Helper()
	seed(t, s, model.Flights,
		model.Point{DeviceID: "D1", Latitude: 0, Longitude: 0, Timestamp: "2024-03-01T11:00:00Z"},
		model.Point{DeviceID: "D1", Latitude: 0, Longitude: 1, Timestamp: "2024-03-01T11:01:05Z"},
		model.Point{DeviceID: "D2", AgentID: "Jayant", Latitude: 5, Longitude: 5, Timestamp: "2024-03-01T11:59:50Z"},
		model.Point{DeviceID: "D2", AgentID: "Jayant", Latitude: 5, Longitude: 5.01, Timestamp: "2024-03-01T11:59:55Z"},
	)
}

func TestFlights(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seedFlights(t, s)

	w := doRequest(t, h, http.MethodGet, "/api/flights", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[flightsBody](t, w)
	require.Len(t, got.Flights, 2)

	active, done := got.Flights[0], got.Flights[1]
	assert.Equal(t, "D2", active.ID)
	assert.Equal(t, "Jayant", active.AgentID)
	assert.Equal(t, track.Active, active.Status)
	assert.Equal(t, "5s", active.Duration)

	assert.Equal(t, "D1", done.ID)
	assert.Equal(t, track.UnknownAgent, done.AgentID)
	assert.Equal(t, track.Completed, done.Status)
	assert.Equal(t, "1m 5s", done.Duration)
	assert.Equal(t, "111.19 km", done.Distance)
	assert.Equal(t, "11:00:00", done.StartTime)

	assert.Equal(t, 1, got.Stats.Active)
	assert.Equal(t, 1, got.Stats.Completed)
	assert.InDelta(t, 35.0, got.Stats.AvgDurationSeconds, 1e-9)
}

func TestFlightsParams(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seedFlights(t, s)

	w := doRequest(t, h, http.MethodGet, "/api/flights?window=2h&units=nm&speed=kn&tz=Asia/Kolkata", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decodeBody[flightsBody](t, w)
	require.Len(t, got.Flights, 2)
	done := got.Flights[1]
	assert.Equal(t, track.Active, done.Status)
	assert.Equal(t, "60.04 nm", done.Distance)
	assert.Equal(t, "16:30:00", done.StartTime)
	assert.Contains(t, done.MaxSpeed, " kn")

	w = doRequest(t, h, http.MethodGet, "/api/flights?variant=mobile", "")
	assert.Empty(t, decodeBody[flightsBody](t, w).Flights)

	for target, msg := range map[string]string{
		"/api/flights?window=-1s":     "invalid window",
		"/api/flights?window=later":   "invalid window",
		"/api/flights?units=parsecs":  "invalid units",
		"/api/flights?speed=warp":     "invalid speed",
		"/api/flights?tz=Mars/Olymp":  "invalid tz",
		"/api/flights?variant=rocket": "unknown variant",
	} {
		w := doRequest(t, h, http.MethodGet, target, "")
		assertJSONError(t, w, http.StatusBadRequest, msg)
	}
}

func TestFlightsSkipsPointsWithoutTrip(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seed(t, s, model.MobileTrips,
		model.Point{TripID: "T1", AgentID: "A1", Latitude: 1, Longitude: 1, Timestamp: "2024-03-01T11:00:00Z"},
		model.Point{AgentID: "A2", Latitude: 2, Longitude: 2, Timestamp: "2024-03-01T11:10:00Z"},
	)
	w := doRequest(t, h, http.MethodGet, "/api/flights?variant=mobile", "")
	got := decodeBody[flightsBody](t, w)
	ids := make([]string, len(got.Flights))
	for i, f := range got.Flights {
		ids[i] = f.ID
	}
	assert.Equal(t, []string{"T1"}, ids)
}

func TestHeatmap(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seedFlights(t, s)

	w := doRequest(t, h, http.MethodGet, "/api/heatmap", "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[[][3]float64](t, w)
	require.Len(t, got, 4)
	assert.Equal(t, [3]float64{0, 0, track.HeatIntensity}, got[0])

	w = doRequest(t, h, http.MethodGet, "/api/heatmap?variant=mobile", "")
	assert.Equal(t, "[]", trim(w.Body.String()))
}

func TestTrackExports(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seedFlights(t, s)

	w := doRequest(t, h, http.MethodGet, "/api/track/geojson?id=D1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))
	var f struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string       `json:"type"`
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "LineString", f.Geometry.Type)
	if diff := cmp.Diff([][2]float64{{0, 0}, {1, 0}}, f.Geometry.Coordinates); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "D1", f.Properties["track_id"])

	w = doRequest(t, h, http.MethodGet, "/api/track/chart?id=D2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Track D2")

	w = doRequest(t, h, http.MethodGet, "/api/track/plot.png?id=D2", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = doRequest(t, h, http.MethodGet, "/api/track/geojson?id=Jayant&key=agent_id", "")
	assert.Equal(t, http.StatusOK, w.Code)

	assertJSONError(t, doRequest(t, h, http.MethodGet, "/api/track/geojson", ""), http.StatusBadRequest, "missing id")
	assertJSONError(t, doRequest(t, h, http.MethodGet, "/api/track/geojson?id=D1&key=name", ""), http.StatusBadRequest, "invalid key")
	assertJSONError(t, doRequest(t, h, http.MethodGet, "/api/track/chart?id=NOPE", ""), http.StatusNotFound, "track not found")
	assertJSONError(t, doRequest(t, h, http.MethodPost, "/api/track/plot.png?id=D1", ""), http.StatusMethodNotAllowed, "method not allowed")
}

func TestVehiclePositions(t *testing.T) {
	_, s, h := setupTestServer(t, Options{})
	seed(t, s, model.MobileTrips,
		model.Point{TripID: "T1", AgentID: "Jayant", Latitude: 12.5, Longitude: 77.25, Timestamp: "2024-03-01T11:59:30Z"},
		model.Point{TripID: "T0", AgentID: "Jayant", Latitude: 1, Longitude: 1, Timestamp: "2024-03-01T10:00:00Z"},
	)

	w := doRequest(t, h, http.MethodGet, "/api/fleet/vehicle-positions?variant=mobile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, feed.ContentTypeProto, w.Header().Get("Content-Type"))
	var fm gtfsrtpb.FeedMessage
	require.NoError(t, proto.Unmarshal(w.Body.Bytes(), &fm))
	require.Len(t, fm.GetEntity(), 1)
	assert.Equal(t, "T1", fm.GetEntity()[0].GetVehicle().GetTrip().GetTripId())
	assert.Equal(t, uint64(testNow.Unix()), fm.GetHeader().GetTimestamp())

	w = doRequest(t, h, http.MethodGet, "/api/fleet/vehicle-positions?variant=mobile&format=json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, feed.ContentTypeJSON, w.Header().Get("Content-Type"))
	var fromJSON gtfsrtpb.FeedMessage
	require.NoError(t, protojson.Unmarshal(w.Body.Bytes(), &fromJSON))
	assert.Equal(t, "T1", fromJSON.GetEntity()[0].GetVehicle().GetTrip().GetTripId())

	w = doRequest(t, h, http.MethodGet, "/api/fleet/vehicle-positions", "")
	require.NoError(t, proto.Unmarshal(w.Body.Bytes(), &fm))
	assert.Empty(t, fm.GetEntity())
}

type fakeSearcher struct {
	variant string
	args    [3]float64
	limit   int
	result  []geoindex.Nearby
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, v model.Variant, lat, lon, radiusKm float64, limit int) ([]geoindex.Nearby, error) {
	f.variant = v.Name
	f.args = [3]float64{lat, lon, radiusKm}
	f.limit = limit
	return f.result, f.err
}

func TestNearby(t *testing.T) {
	_, _, off := setupTestServer(t, Options{})
	assertJSONError(t, doRequest(t, off, http.MethodGet, "/api/nearby?lat=1&lon=2&radius_km=3", ""),
		http.StatusNotFound, "geo index not configured")

	fs := &fakeSearcher{result: []geoindex.Nearby{{TrackID: "T1", Latitude: 1, Longitude: 2, DistanceKm: 0.5}}}
	_, _, h := setupTestServer(t, Options{Nearby: fs})

	w := doRequest(t, h, http.MethodGet, "/api/nearby?variant=mobile&lat=1&lon=2&radius_km=3&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fs.result, decodeBody[[]geoindex.Nearby](t, w))
	assert.Equal(t, "mobile", fs.variant)
	assert.Equal(t, [3]float64{1, 2, 3}, fs.args)
	assert.Equal(t, 5, fs.limit)

	fs.result = nil
	w = doRequest(t, h, http.MethodGet, "/api/nearby?lat=1&lon=2&radius_km=3", "")
	assert.Equal(t, "[]", trim(w.Body.String()))
	assert.Equal(t, 0, fs.limit)

	for target, msg := range map[string]string{
		"/api/nearby?lon=2&radius_km=3":               "invalid lat",
		"/api/nearby?lat=1&lon=east&radius_km=3":      "invalid lon",
		"/api/nearby?lat=1&lon=2":                     "invalid radius_km",
		"/api/nearby?lat=1&lon=2&radius_km=0":         "invalid radius_km",
		"/api/nearby?lat=1&lon=2&radius_km=3&limit=-": "invalid limit",
	} {
		assertJSONError(t, doRequest(t, h, http.MethodGet, target, ""), http.StatusBadRequest, msg)
	}

	fs.err = errors.New("redis: connection pool timeout")
	w = doRequest(t, h, http.MethodGet, "/api/nearby?lat=1&lon=2&radius_km=3", "")
	assertJSONError(t, w, http.StatusInternalServerError, "Internal Server Error")
}
