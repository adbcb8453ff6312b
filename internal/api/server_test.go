package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/publish"
	"github.com/heliradar/tracker/internal/store"
	"github.com/heliradar/tracker/internal/timeutil"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingObserver struct {
	mu       sync.Mutex
	variants []string
	points   []model.Point
	err      error
}

func (o *recordingObserver) Observe(ctx context.Context, v model.Variant, points ...model.Point) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.variants = append(o.variants, v.Name)
	o.points = append(o.points, points...)
	return o.err
}

func (o *recordingObserver) Close() error { return nil }

func setupTestServer(t *testing.T, opts Options) (*Server, store.Store, http.Handler) {
	t.Helper()
	s := openTestStore(t)
	if opts.Clock == nil {
		opts.Clock = timeutil.NewMockClock(testNow)
	}
	srv := NewServer(s, opts)
	return srv, s, srv.ServeMux()
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func assertJSONError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	assert.Equal(t, status, w.Code, "body: %s", w.Body.String())
	assert.Equal(t, map[string]string{"error": msg}, decodeBody[map[string]string](t, w))
}

func seed(t *testing.T, s store.Store, c model.Collection, points ...model.Point) {
	t.Helper()
	for _, p := range points {
		require.NoError(t, s.Insert(context.Background(), c, p))
	}
}

var errStoreDown = errors.New("connection refused")

// failingStore fails every call the handlers make.
type failingStore struct{ store.Store }

func (failingStore) Insert(context.Context, model.Collection, model.Point) error { return errStoreDown }
func (failingStore) InsertMany(context.Context, model.Collection, []model.Point) error {
	return errStoreDown
}
func (failingStore) History(context.Context, model.Collection, model.Key, string) ([]model.Point, error) {
	return nil, errStoreDown
}
func (failingStore) Latest(context.Context, model.Collection, model.Key, string) (*model.Point, error) {
	return nil, errStoreDown
}
func (failingStore) Recent(context.Context, model.Collection, model.Key, time.Time) ([]model.Point, error) {
	return nil, errStoreDown
}
func (failingStore) Distinct(context.Context, model.Collection, model.Key) ([]string, error) {
	return nil, errStoreDown
}
func (failingStore) All(context.Context, model.Collection, int) ([]model.Point, error) {
	return nil, errStoreDown
}
func (failingStore) FindAgent(context.Context, string) (*model.Agent, error) {
	return nil, errStoreDown
}
func (failingStore) Ping(context.Context) error { return errStoreDown }

func TestStoreFailuresReturnGenericError(t *testing.T) {
	h := NewServer(failingStore{}, Options{Clock: timeutil.NewMockClock(testNow)}).ServeMux()

	tests := []struct {
		method, target, body string
	}{
		{http.MethodGet, "/api/location", ""},
		{http.MethodGet, "/api/location?device_id=D1", ""},
		{http.MethodGet, "/api/location?device_id=D1&latest=true", ""},
		{http.MethodGet, "/api/mobilelocation?recent=true", ""},
		{http.MethodGet, "/api/mobilelocation?agent_id=A1", ""},
		{http.MethodPost, "/api/location", `{"device_id":"D1","latitude":1,"longitude":2}`},
		{http.MethodPost, "/api/location", `{"points":[{"device_id":"D1","latitude":1,"longitude":2}]}`},
		{http.MethodPost, "/api/login", `{"agentId":"A1","password":"x"}`},
		{http.MethodGet, "/api/flights", ""},
		{http.MethodGet, "/api/heatmap", ""},
		{http.MethodGet, "/api/track/geojson?id=D1", ""},
		{http.MethodGet, "/api/fleet/vehicle-positions", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			w := doRequest(t, h, tt.method, tt.target, tt.body)
			assertJSONError(t, w, http.StatusInternalServerError, "Internal Server Error")
			assert.NotContains(t, w.Body.String(), errStoreDown.Error())
		})
	}
}

func TestServerIngest(t *testing.T) {
	obs := &recordingObserver{}
	srv, s, _ := setupTestServer(t, Options{Observers: []publish.Observer{obs}})
	ctx := context.Background()

	err := srv.Ingest(ctx, model.Device, model.Point{Latitude: 1, Longitude: 2})
	assert.ErrorIs(t, err, model.ErrMissingTrackKey)
	assert.Empty(t, obs.points)

	require.NoError(t, srv.Ingest(ctx, model.Device, model.Point{DeviceID: "HELI-1", Latitude: 1, Longitude: 2, Mode: model.ModeLive}))
	require.Len(t, obs.points, 1)
	assert.Equal(t, []string{"device"}, obs.variants)
	assert.Equal(t, "2024-03-01T12:00:00.000Z", obs.points[0].Timestamp)

	latest, err := s.Latest(ctx, model.Flights, model.DeviceID, "HELI-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, model.ModeLive, latest.Mode)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := doRequest(t, h, http.MethodGet, "/api/health?x=1", "")
	assert.Equal(t, http.StatusTeapot, w.Code)
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	assert.Contains(t, buf.String(), "/api/health?x=1")
	assert.Contains(t, buf.String(), "id="+id)
	assert.Contains(t, buf.String(), colorBoldRed+"418")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"304"+colorReset, statusCodeColor(304))
	assert.Equal(t, colorBoldRed+"503"+colorReset, statusCodeColor(503))
	assert.Equal(t, "101", statusCodeColor(101))
}
