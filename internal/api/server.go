package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.bug.st/serial"

	"github.com/heliradar/tracker/internal/geoindex"
	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
	"github.com/heliradar/tracker/internal/publish"
	"github.com/heliradar/tracker/internal/store"
	"github.com/heliradar/tracker/internal/timeutil"
	"github.com/heliradar/tracker/internal/track"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Messages returned to clients. Store errors are logged and never echoed.
const (
	msgInvalidFormat    = "invalid format"
	msgInvalidTimestamp = "invalid timestamp"
	msgInternal         = "Internal Server Error"
)

// NearbySearcher answers radius queries over live positions.
type NearbySearcher interface {
	Search(ctx context.Context, v model.Variant, lat, lon, radiusKm float64, limit int) ([]geoindex.Nearby, error)
}

// Options configure a Server. Zero values select the defaults.
type Options struct {
	// FleetWindow bounds the recent query and the live feeds.
	FleetWindow time.Duration
	// DashboardWindow decides ACTIVE vs COMPLETED in flight summaries.
	DashboardWindow time.Duration
	Location        *time.Location
	Clock           timeutil.Clock
	// Observers are told about every stored point.
	Observers []publish.Observer
	// Nearby enables /api/nearby when set.
	Nearby NearbySearcher

	// GPSPort is the configured receiver, flagged in /api/gps/devices.
	GPSPort   string
	OpenPort  PortOpener
	ListPorts func() ([]string, error)
}

type Server struct {
	store store.Store
	opts  Options
}

func NewServer(s store.Store, opts Options) *Server {
	if opts.FleetWindow <= 0 {
		opts.FleetWindow = track.FleetWindow
	}
	if opts.DashboardWindow <= 0 {
		opts.DashboardWindow = track.DashboardWindow
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.OpenPort == nil {
		opts.OpenPort = openSerialPort
	}
	if opts.ListPorts == nil {
		opts.ListPorts = serial.GetPortsList
	}
	return &Server{store: s, opts: opts}
}

func (s *Server) now() time.Time { return s.opts.Clock.Now() }

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// RequestIDHeader carries the per-request id on responses. An id supplied by
// the client is kept.
const RequestIDHeader = "X-Request-Id"

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms id=%s",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6, id,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(model.Device.Path, s.variantHandler(model.Device))
	mux.HandleFunc(model.Mobile.Path, s.variantHandler(model.Mobile))
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/flights", s.handleFlights)
	mux.HandleFunc("/api/heatmap", s.handleHeatmap)
	mux.HandleFunc("/api/track/geojson", s.handleTrackGeoJSON)
	mux.HandleFunc("/api/track/chart", s.handleTrackChart)
	mux.HandleFunc("/api/track/plot.png", s.handleTrackPlot)
	mux.HandleFunc("/api/fleet/vehicle-positions", s.handleVehiclePositions)
	mux.HandleFunc("/api/nearby", s.handleNearby)
	mux.HandleFunc("/api/gps/devices", s.handleGPSDevices)
	mux.HandleFunc("/api/gps/probe", s.handleGPSProbe)
	return mux
}

// Ingest validates p, stores it and notifies the observers. It is the
// in-process equivalent of POSTing a single point.
func (s *Server) Ingest(ctx context.Context, v model.Variant, p model.Point) error {
	p, err := s.prepare(v, p)
	if err != nil {
		return err
	}
	if err := s.store.Insert(ctx, v.Collection, p); err != nil {
		return err
	}
	publish.Fanout(ctx, s.opts.Observers, v, p)
	return nil
}

// IngestBatch validates every point before writing any of them.
func (s *Server) IngestBatch(ctx context.Context, v model.Variant, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}
	prepared := make([]model.Point, len(points))
	for i, p := range points {
		var err error
		if prepared[i], err = s.prepare(v, p); err != nil {
			return err
		}
	}
	if err := s.store.InsertMany(ctx, v.Collection, prepared); err != nil {
		return err
	}
	publish.Fanout(ctx, s.opts.Observers, v, prepared...)
	return nil
}

// prepare checks the identifying fields and fills a missing timestamp with
// the server time.
func (s *Server) prepare(v model.Variant, p model.Point) (model.Point, error) {
	if err := p.Validate(v); err != nil {
		return p, err
	}
	if p.Timestamp == "" {
		p.Timestamp = model.FormatTimestamp(s.now())
		return p, nil
	}
	if _, err := p.Time(); err != nil {
		return p, err
	}
	return p, nil
}

// clientError maps validation failures to a 400 message. It returns false
// for anything else.
func clientError(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrInvalidTimestamp):
		return msgInvalidTimestamp, true
	case errors.Is(err, model.ErrInvalidFormat),
		errors.Is(err, model.ErrMissingTrackKey),
		errors.Is(err, model.ErrMissingCoordinates),
		errors.Is(err, httputil.ErrBodyTooLarge):
		return msgInvalidFormat, true
	}
	return "", false
}

// internalError logs err against the request and writes a generic 500.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	monitoring.Logf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	httputil.InternalServerError(w, msgInternal)
}
