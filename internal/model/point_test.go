package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestPointUnmarshalKeepsExtraFields(t *testing.T) {
	body := `{"device_id":"POC-001","latitude":51.5,"longitude":-0.12,"timestamp":"2024-01-01T00:00:00Z","mode":"simulation","altitude":120,"crew":["a","b"]}`

	var p Point
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	want := Point{
		DeviceID:  "POC-001",
		Latitude:  51.5,
		Longitude: -0.12,
		Timestamp: "2024-01-01T00:00:00Z",
		Mode:      ModeSimulation,
		Extra: map[string]any{
			"altitude": float64(120),
			"crew":     []any{"a", "b"},
		},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("point mismatch (-want +got):\n%s", diff)
	}

	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got, orig map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(body), &orig); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("document changed after re-encoding (-want +got):\n%s", diff)
	}
}

func TestDecodePointErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing latitude", `{"device_id":"a","longitude":1}`, ErrMissingCoordinates},
		{"null longitude", `{"device_id":"a","latitude":1,"longitude":null}`, ErrMissingCoordinates},
		{"string latitude", `{"device_id":"a","latitude":"1","longitude":1}`, ErrMissingCoordinates},
		{"numeric device id", `{"device_id":7,"latitude":1,"longitude":1}`, ErrInvalidFormat},
		{"numeric timestamp", `{"device_id":"a","latitude":1,"longitude":1,"timestamp":17}`, ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]json.RawMessage
			if err := json.Unmarshal([]byte(tt.body), &raw); err != nil {
				t.Fatal(err)
			}
			_, err := DecodePoint(raw)
			if !errors.Is(err, tt.want) {
				t.Errorf("DecodePoint() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPointValidate(t *testing.T) {
	tests := []struct {
		name    string
		point   Point
		variant Variant
		wantErr bool
	}{
		{"device with id", Point{DeviceID: "d"}, Device, false},
		{"device without id", Point{TripID: "t"}, Device, true},
		{"mobile with trip", Point{TripID: "t"}, Mobile, false},
		{"mobile with agent only", Point{AgentID: "a"}, Mobile, true},
		{"mobile without ids", Point{DeviceID: "d"}, Mobile, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate(tt.variant)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMissingTrackKey) {
				t.Errorf("error %v does not wrap ErrMissingTrackKey", err)
			}
		})
	}
}

func TestTimestamps(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-05T10:01:05.250Z")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	if got := FormatTimestamp(ts); got != "2024-03-05T10:01:05.250Z" {
		t.Errorf("FormatTimestamp = %q", got)
	}

	offset := time.Date(2024, 3, 5, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	if got := FormatTimestamp(offset); got != "2024-03-05T10:00:00.000Z" {
		t.Errorf("FormatTimestamp(offset) = %q", got)
	}

	if _, err := ParseTimestamp("yesterday"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("ParseTimestamp(yesterday) error = %v", err)
	}
}

func TestSnapshotOf(t *testing.T) {
	p := Point{TripID: "T1", AgentID: "A7", Latitude: 1, Longitude: 2, Timestamp: "2024-01-01T00:00:00Z"}
	s := SnapshotOf(p, TripID)
	if s.ID != "T1" || s.AgentID != "A7" || s.Latitude != 1 || s.Longitude != 2 {
		t.Errorf("SnapshotOf = %+v", s)
	}
}

func TestVariantByName(t *testing.T) {
	if v, ok := VariantByName("mobile"); !ok || v.Collection != MobileTrips {
		t.Errorf("mobile -> %+v, %v", v, ok)
	}
	if v, ok := VariantByName(""); !ok || v.Collection != Flights {
		t.Errorf("default -> %+v, %v", v, ok)
	}
	if _, ok := VariantByName("boat"); ok {
		t.Error("unknown variant accepted")
	}
}

func TestTrackOf(t *testing.T) {
	p := Point{AgentID: "A7"}
	if got := Mobile.TrackOf(p); got != "" {
		t.Errorf("mobile point without trip = %q", got)
	}
	p.TripID = "T1"
	if got := Mobile.TrackOf(p); got != "T1" {
		t.Errorf("mobile trip = %q", got)
	}
	if got := Device.TrackOf(p); got != "" {
		t.Errorf("device without device_id = %q", got)
	}
}
