// Package httputil holds the JSON response helpers shared by the API
// handlers and the HTTP client abstraction used by the API client.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPClient is the part of *http.Client the API client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewStandardClient returns an *http.Client with the given timeout. A zero
// timeout means 10 seconds.
func NewStandardClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// RecordedRequest is a request seen by MockHTTPClient with its body already
// read.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// MockResponse is a canned reply.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// MockHTTPClient replays queued responses in order and records every request.
// Once the queue is exhausted it answers 200 with an empty JSON object.
type MockHTTPClient struct {
	mu        sync.Mutex
	requests  []RecordedRequest
	responses []MockResponse
	// Handler, when set, answers every request instead of the queue.
	Handler func(RecordedRequest) MockResponse
}

func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response.
func (m *MockHTTPClient) AddResponse(status int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{StatusCode: status, Body: body})
	return m
}

// AddError queues a transport error.
func (m *MockHTTPClient) AddError(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, MockResponse{Err: err})
	return m
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		rec.Body = string(b)
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	resp := MockResponse{StatusCode: http.StatusOK, Body: "{}"}
	switch {
	case m.Handler != nil:
		h := m.Handler
		m.mu.Unlock()
		resp = h(rec)
		m.mu.Lock()
	case len(m.responses) > 0:
		resp = m.responses[0]
		m.responses = m.responses[1:]
	}
	m.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}
	return &http.Response{
		StatusCode: resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
		Request:    req,
	}, nil
}

// Requests returns a copy of the recorded requests.
func (m *MockHTTPClient) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests seen so far.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Path returns the path and query of the nth request, or "" if there is none.
func (m *MockHTTPClient) Path(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return ""
	}
	u := m.requests[n].URL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
		if j := strings.IndexByte(u, '/'); j >= 0 {
			return u[j:]
		}
		return "/"
	}
	return u
}
