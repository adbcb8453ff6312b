// Package client is a Go client for the tracker HTTP API. The simulator,
// the fleet poller and the replay and export commands use it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
)

var ErrUnauthorized = errors.New("invalid agent id or password")

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tracker api: %d %s", e.StatusCode, e.Message)
}

// Client talks to one tracker server.
type Client struct {
	base string
	hc   httputil.HTTPClient
}

// New returns a client for the server at baseURL. A nil hc uses a standard
// client with a 10 second timeout.
func New(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(0)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// IngestResult is the server's acknowledgement of a write.
type IngestResult struct {
	Status string `json:"status"`
	Count  int    `json:"count,omitempty"`
}

// Ingest stores a single point.
func (c *Client) Ingest(ctx context.Context, v model.Variant, p model.Point) error {
	var res IngestResult
	return c.do(ctx, http.MethodPost, v.Path, nil, p, &res)
}

// IngestBatch stores points in one request and returns how many the server
// saved.
func (c *Client) IngestBatch(ctx context.Context, v model.Variant, points []model.Point) (int, error) {
	if points == nil {
		points = []model.Point{}
	}
	var res IngestResult
	body := struct {
		Points []model.Point `json:"points"`
	}{points}
	if err := c.do(ctx, http.MethodPost, v.Path, nil, body, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// History returns every point whose key field equals id, oldest first.
func (c *Client) History(ctx context.Context, v model.Variant, key model.Key, id string) ([]model.Point, error) {
	var points []model.Point
	q := url.Values{string(key): {id}}
	if err := c.do(ctx, http.MethodGet, v.Path, q, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Latest returns the newest point for id, or nil when there is none.
func (c *Client) Latest(ctx context.Context, v model.Variant, key model.Key, id string) (*model.Point, error) {
	var raw json.RawMessage
	q := url.Values{string(key): {id}, "latest": {"true"}}
	if err := c.do(ctx, http.MethodGet, v.Path, q, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p model.Point
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Recent returns one snapshot per track that reported recently.
func (c *Client) Recent(ctx context.Context, v model.Variant) ([]model.Snapshot, error) {
	var snaps []model.Snapshot
	if err := c.do(ctx, http.MethodGet, v.Path, url.Values{"recent": {"true"}}, nil, &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// TrackIDs lists every known track id for the variant.
func (c *Client) TrackIDs(ctx context.Context, v model.Variant) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, v.Path, nil, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Status  string `json:"status"`
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
}

// Login checks an agent's credentials. A rejected login returns
// ErrUnauthorized.
func (c *Client) Login(ctx context.Context, agentID, password string) (LoginResult, error) {
	var res LoginResult
	body := map[string]string{"agentId": agentID, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/login", nil, body, &res)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return LoginResult{}, fmt.Errorf("%w: %s", ErrUnauthorized, agentID)
	}
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
