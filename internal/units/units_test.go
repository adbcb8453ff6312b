package units

import (
	"math"
	"testing"
)

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		km   float64
		unit string
		want string
	}{
		{3.4167, KM, "3.42 km"},
		{0, KM, "0.00 km"},
		{1.609344, MI, "1.00 mi"},
		{1.852, NM, "1.00 nm"},
		{2, "furlong", "2.00 km"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.km, tt.unit); got != tt.want {
			t.Errorf("FormatDistance(%v, %q) = %q, want %q", tt.km, tt.unit, got, tt.want)
		}
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		unit string
		want float64
	}{
		{MPS, 10},
		{KMPH, 36},
		{KPH, 36},
		{MPH, 22.369362920544},
		{KNOTS, 19.438444924406},
		{"warp", 10},
	}
	for _, tt := range tests {
		if got := ConvertSpeed(10, tt.unit); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ConvertSpeed(10, %q) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestValidUnits(t *testing.T) {
	if !IsValidDistance(NM) || IsValidDistance(MPS) {
		t.Error("distance unit validation is wrong")
	}
	if !IsValidSpeed(KNOTS) || IsValidSpeed(KM) {
		t.Error("speed unit validation is wrong")
	}
}

func TestLocation(t *testing.T) {
	loc, err := Location("")
	if err != nil || loc.String() != "UTC" {
		t.Errorf("Location(\"\") = %v, %v", loc, err)
	}
	if _, err := Location("Not/AZone"); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := FormatSpeed(10, KNOTS); got != "19.4 kn" {
		t.Errorf("FormatSpeed(10, kn) = %q", got)
	}
	if got := FormatSpeed(10, "furlongs"); got != "10.0 mps" {
		t.Errorf("FormatSpeed(10, furlongs) = %q", got)
	}
}
