// Package units converts track distances and speeds for display and resolves
// the time zone used for summary labels.
package units

import (
	"fmt"
	"time"
)

// Distance units
const (
	KM = "km"
	MI = "mi"
	NM = "nm"
)

// Speed units
const (
	MPS   = "mps"
	KMPH  = "kmph"
	KPH   = "kph"
	MPH   = "mph"
	KNOTS = "kn"
)

// ValidDistanceUnits contains all valid distance unit values
var ValidDistanceUnits = []string{KM, MI, NM}

// ValidSpeedUnits contains all valid speed unit values
var ValidSpeedUnits = []string{MPS, KMPH, KPH, MPH, KNOTS}

func contains(list []string, v string) bool {
	for _, u := range list {
		if u == v {
			return true
		}
	}
	return false
}

// IsValidDistance reports whether unit is a known distance unit.
func IsValidDistance(unit string) bool { return contains(ValidDistanceUnits, unit) }

// IsValidSpeed reports whether unit is a known speed unit.
func IsValidSpeed(unit string) bool { return contains(ValidSpeedUnits, unit) }

// ConvertDistance converts kilometres to unit. Unknown units return km.
func ConvertDistance(km float64, unit string) float64 {
	switch unit {
	case MI:
		return km / 1.609344
	case NM:
		return km / 1.852
	default:
		return km
	}
}

// FormatDistance renders a distance with two decimals, e.g. "3.42 km".
func FormatDistance(km float64, unit string) string {
	if !IsValidDistance(unit) {
		unit = KM
	}
	return fmt.Sprintf("%.2f %s", ConvertDistance(km, unit), unit)
}

// ConvertSpeed converts metres per second to unit. Unknown units return m/s.
func ConvertSpeed(mps float64, unit string) float64 {
	switch unit {
	case KMPH, KPH:
		return mps * 3.6
	case MPH:
		return mps * 2.2369362920544
	case KNOTS:
		return mps * 1.9438444924406
	default:
		return mps
	}
}

// FormatSpeed renders a speed given in m/s with one decimal, e.g. "41.2 kn".
func FormatSpeed(mps float64, unit string) string {
	if !IsValidSpeed(unit) {
		unit = MPS
	}
	return fmt.Sprintf("%.1f %s", ConvertSpeed(mps, unit), unit)
}

// Location loads the named time zone. An empty name means UTC.
func Location(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}
