// Package model holds the location point, track snapshot and agent types
// shared by the store backends, the HTTP API and the API client.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidFormat      = errors.New("invalid format")
	ErrMissingTrackKey    = errors.New("missing track id")
	ErrMissingCoordinates = errors.New("missing coordinates")
	ErrInvalidTimestamp   = errors.New("invalid timestamp")
)

// Collection names a logical point collection.
type Collection string

const (
	Flights     Collection = "flights"
	MobileTrips Collection = "mobileTrips"
	Agents      Collection = "agents"
)

// Key names an identifying field on a point.
type Key string

const (
	DeviceID Key = "device_id"
	TripID   Key = "trip_id"
	AgentID  Key = "agent_id"
)

// Valid reports whether k is one of the known identifying fields.
func (k Key) Valid() bool {
	switch k {
	case DeviceID, TripID, AgentID:
		return true
	}
	return false
}

const (
	ModeLive       = "live"
	ModeSimulation = "simulation"
)

// Variant describes one flavour of the tracking endpoints: which collection
// it writes to and which field identifies a track.
type Variant struct {
	Name       string
	Path       string
	Collection Collection
	TrackKey   Key
	// AgentKey is the optional secondary owner field, empty when the variant
	// has none.
	AgentKey Key
}

var (
	Device = Variant{Name: "device", Path: "/api/location", Collection: Flights, TrackKey: DeviceID}
	Mobile = Variant{Name: "mobile", Path: "/api/mobilelocation", Collection: MobileTrips, TrackKey: TripID, AgentKey: AgentID}
)

// VariantByName looks up a variant by its name ("device" or "mobile").
func VariantByName(name string) (Variant, bool) {
	switch name {
	case Device.Name, "":
		return Device, true
	case Mobile.Name:
		return Mobile, true
	}
	return Variant{}, false
}

// TrackOf returns the id p is grouped under. Agent ids never stand in for a
// missing track key: recent and distinct queries group by the track key
// alone, so every view uses the same grouping.
func (v Variant) TrackOf(p Point) string {
	return p.Key(v.TrackKey)
}

// Point is a single timestamped observation. Fields that are not part of the
// tracking model are kept in Extra so documents round trip unchanged.
type Point struct {
	ID        string
	DeviceID  string
	TripID    string
	AgentID   string
	Latitude  float64
	Longitude float64
	Timestamp string
	Mode      string
	Extra     map[string]any
}

// Key returns the value of the identifying field k.
func (p Point) Key(k Key) string {
	switch k {
	case DeviceID:
		return p.DeviceID
	case TripID:
		return p.TripID
	case AgentID:
		return p.AgentID
	}
	return ""
}

// Validate checks that p carries the variant's track key. An agent id alone
// is not enough.
func (p Point) Validate(v Variant) error {
	if p.Key(v.TrackKey) != "" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingTrackKey, v.TrackKey)
}

// Time parses the point timestamp.
func (p Point) Time() (time.Time, error) {
	return ParseTimestamp(p.Timestamp)
}

// Fields returns the document form of p.
func (p Point) Fields() map[string]any {
	m := make(map[string]any, len(p.Extra)+8)
	for k, v := range p.Extra {
		m[k] = v
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("_id", p.ID)
	put(string(DeviceID), p.DeviceID)
	put(string(TripID), p.TripID)
	put(string(AgentID), p.AgentID)
	put("timestamp", p.Timestamp)
	put("mode", p.Mode)
	m["latitude"] = p.Latitude
	m["longitude"] = p.Longitude
	return m
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Fields())
}

func (p *Point) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrInvalidFormat
	}
	pt, err := DecodePoint(raw)
	if err != nil {
		return err
	}
	*p = pt
	return nil
}

// DecodePoint builds a point from the raw members of a JSON object. Latitude
// and longitude must be present and numeric; identifying fields and the
// timestamp must be strings when present.
func DecodePoint(raw map[string]json.RawMessage) (Point, error) {
	var p Point
	var err error

	if p.Latitude, err = number(raw, "latitude"); err != nil {
		return Point{}, err
	}
	if p.Longitude, err = number(raw, "longitude"); err != nil {
		return Point{}, err
	}

	for name, dst := range map[string]*string{
		"_id":            &p.ID,
		string(DeviceID): &p.DeviceID,
		string(TripID):   &p.TripID,
		string(AgentID):  &p.AgentID,
		"timestamp":      &p.Timestamp,
		"mode":           &p.Mode,
	} {
		if err := optionalString(raw, name, dst); err != nil {
			return Point{}, err
		}
	}

	for k, v := range raw {
		switch k {
		case "_id", "latitude", "longitude", "timestamp", "mode",
			string(DeviceID), string(TripID), string(AgentID):
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return Point{}, fmt.Errorf("%w: field %q: %v", ErrInvalidFormat, k, err)
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = val
	}
	return p, nil
}

func number(raw map[string]json.RawMessage, name string) (float64, error) {
	v, ok := raw[name]
	if !ok || string(v) == "null" {
		return 0, fmt.Errorf("%w: %s", ErrMissingCoordinates, name)
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMissingCoordinates, name)
	}
	return f, nil
}

func optionalString(raw map[string]json.RawMessage, name string, dst *string) error {
	v, ok := raw[name]
	if !ok || string(v) == "null" {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%w: %s must be a string", ErrInvalidFormat, name)
	}
	return nil
}

// ParseTimestamp parses an ISO-8601 timestamp as sent by browsers and mobile
// clients.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// FormatTimestamp renders t in UTC with millisecond precision, the format
// produced by JavaScript's Date.toISOString.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Snapshot is the most recent position of one active track.
type Snapshot struct {
	ID        string  `json:"_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AgentID   string  `json:"agent_id,omitempty"`
	TripID    string  `json:"trip_id,omitempty"`
	DeviceID  string  `json:"device_id,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// SnapshotOf reduces p to a snapshot keyed by its value for key.
func SnapshotOf(p Point, key Key) Snapshot {
	return Snapshot{
		ID:        p.Key(key),
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		AgentID:   p.AgentID,
		TripID:    p.TripID,
		DeviceID:  p.DeviceID,
		Timestamp: p.Timestamp,
	}
}

// Agent is a field agent allowed to sign in from the mobile tracker.
// Password holds either a bcrypt hash or, for records created before hashing
// was introduced, the plaintext secret.
type Agent struct {
	AgentID  string `json:"agentId" bson:"agentId"`
	Name     string `json:"name" bson:"name"`
	Password string `json:"-" bson:"password"`
}
