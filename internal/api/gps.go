package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/heliradar/tracker/internal/gps"
	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/monitoring"
	"github.com/heliradar/tracker/internal/serialmux"
)

const (
	defaultProbeTimeout = 5 * time.Second
	// probeSentences stops a probe early once this many sentences were read.
	probeSentences = 20
	maxSampleLen   = 100
)

// PortOpener opens a serial port for a probe. Reads must return within
// timeout.
type PortOpener func(path string, opts serialmux.PortOptions, timeout time.Duration) (io.ReadCloser, error)

func openSerialPort(path string, opts serialmux.PortOptions, timeout time.Duration) (io.ReadCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		monitoring.Logf("Warning: Failed to set read timeout: %v", err)
	}
	return port, nil
}

// GPSProbeRequest represents the request body for probing a GPS receiver
type GPSProbeRequest struct {
	PortPath       string `json:"port_path" validate:"required"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,min=1,max=30"`
	serialmux.PortOptions
}

// GPSProbeResponse reports what a probe read from the port
type GPSProbeResponse struct {
	Success        bool     `json:"success"`
	PortPath       string   `json:"port_path"`
	BaudRate       int      `json:"baud_rate"`
	TestDurationMS int64    `json:"test_duration_ms"`
	Sentences      int      `json:"sentences"`
	Fixes          int      `json:"fixes"`
	LastFix        *gps.Fix `json:"last_fix,omitempty"`
	SampleData     string   `json:"sample_data,omitempty"`
	Error          string   `json:"error,omitempty"`
	Message        string   `json:"message"`
	Suggestion     string   `json:"suggestion,omitempty"`
}

// GPSDeviceInfo represents information about a discovered serial device
type GPSDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
	// Configured marks the port the recorder is set up to read.
	Configured bool `json:"configured"`
}

// handleGPSProbe handles POST /api/gps/probe
func (s *Server) handleGPSProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	var req GPSProbeRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.BadRequest(w, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		httputil.BadRequest(w, "Port path is required")
		return
	}
	if !isValidPortPath(req.PortPath) {
		httputil.BadRequest(w, "Invalid port path. Must start with /dev/tty or /dev/serial")
		return
	}
	opts, err := req.PortOptions.Normalize()
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	timeout := defaultProbeTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	// A failed probe is still a successful API call.
	httputil.WriteJSONOK(w, s.probe(req.PortPath, opts, timeout))
}

func (s *Server) probe(path string, opts serialmux.PortOptions, timeout time.Duration) GPSProbeResponse {
	start := time.Now()
	resp := GPSProbeResponse{PortPath: path, BaudRate: opts.BaudRate}
	finish := func() GPSProbeResponse {
		resp.TestDurationMS = time.Since(start).Milliseconds()
		return resp
	}

	port, err := s.opts.OpenPort(path, opts, timeout)
	if err != nil {
		resp.Error = fmt.Sprintf("Failed to open port: %v", err)
		resp.Message = "GPS probe failed"
		resp.Suggestion = getSuggestionForError(err)
		return finish()
	}
	defer port.Close()

	scanNMEA(port, start.Add(timeout), &resp)
	switch {
	case resp.Fixes > 0:
		resp.Success = true
		resp.Message = "GPS fix acquired"
	case resp.Sentences > 0:
		resp.Success = true
		resp.Message = "Receiving NMEA but no fix yet"
		resp.Suggestion = "Move the antenna to a spot with a clear view of the sky."
	default:
		resp.Error = "No NMEA sentences received"
		resp.Message = "GPS probe failed"
		resp.Suggestion = "Device may be at wrong baud rate. GPS receivers usually talk at 9600 or 4800. Ensure device is powered on."
	}
	return finish()
}

// scanNMEA reads lines until deadline, EOF or probeSentences sentences.
func scanNMEA(r io.Reader, deadline time.Time, resp *GPSProbeResponse) {
	buf := make([]byte, 256)
	var pending []byte
	for time.Now().Before(deadline) && resp.Sentences < probeSentences {
		n, err := r.Read(buf)
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			observeNMEA(string(pending[:i]), resp)
			pending = pending[i+1:]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				resp.Error = err.Error()
			}
			break
		}
	}
	if len(pending) > 0 {
		observeNMEA(string(pending), resp)
	}
}

func observeNMEA(line string, resp *GPSProbeResponse) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}
	resp.Sentences++
	if resp.SampleData == "" {
		resp.SampleData = line
		if len(resp.SampleData) > maxSampleLen {
			resp.SampleData = resp.SampleData[:maxSampleLen] + "..."
		}
	}
	if fix, err := gps.ParseRMC(line); err == nil {
		resp.Fixes++
		resp.LastFix = &fix
	}
}

// getSuggestionForError provides helpful suggestions based on error type
func getSuggestionForError(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "not found") {
		return "Check that the receiver is connected and appears in /dev/"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Run: sudo usermod -a -G dialout $USER && sudo reboot"
	}
	if strings.Contains(errStr, "resource busy") || strings.Contains(errStr, "device busy") {
		return "Another process may be using the port. If it is the configured GPS port, the recorder already has it open."
	}
	return "Check device connection and permissions"
}

// handleGPSDevices handles GET /api/gps/devices - List available serial devices
func (s *Server) handleGPSDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	ports, err := s.opts.ListPorts()
	if err != nil {
		internalError(w, r, fmt.Errorf("enumerate serial ports: %w", err))
		return
	}

	devices := make([]GPSDeviceInfo, 0, len(ports))
	for _, portPath := range ports {
		devices = append(devices, GPSDeviceInfo{
			PortPath:     portPath,
			FriendlyName: getFriendlyName(portPath),
			Configured:   portPath == s.opts.GPSPort,
		})
	}
	httputil.WriteJSONOK(w, devices)
}

func isValidPortPath(path string) bool {
	return strings.HasPrefix(path, "/dev/tty") || strings.HasPrefix(path, "/dev/serial")
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	deviceName := portPath[strings.LastIndex(portPath, "/")+1:]
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC GPS Receiver (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"), strings.HasPrefix(deviceName, "ttyS0"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	default:
		return deviceName
	}
}
