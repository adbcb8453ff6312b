// Package gps turns NMEA 0183 output from a serial GPS receiver into live
// device points.
package gps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotRMC     = errors.New("not an RMC sentence")
	ErrChecksum   = errors.New("nmea checksum mismatch")
	ErrNoFix      = errors.New("receiver has no fix")
	ErrMalformed  = errors.New("malformed nmea sentence")
	errNoChecksum = fmt.Errorf("%w: missing checksum", ErrMalformed)
)

// Fix is a position reported by an RMC sentence.
type Fix struct {
	Time       time.Time `json:"time"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	SpeedKnots float64   `json:"speed_kn"`
	// Course is the track made good in degrees true; zero when blank.
	Course float64 `json:"course"`
}

// Checksum returns the two-digit hex XOR of body, the text between '$' and
// '*'.
func Checksum(body string) string {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return fmt.Sprintf("%02X", c)
}

// Command frames body as a sentence with its checksum.
func Command(body string) string {
	return "$" + body + "*" + Checksum(body)
}

// UpdateRateCommand asks MediaTek receivers to report every d.
func UpdateRateCommand(d time.Duration) string {
	return Command("PMTK220," + strconv.FormatInt(d.Milliseconds(), 10))
}

// split verifies the checksum and returns the comma separated fields.
func split(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, fmt.Errorf("%w: no leading $", ErrMalformed)
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star != 3 {
		return nil, errNoChecksum
	}
	body, sum := line[1:star], line[star+1:]
	if !strings.EqualFold(Checksum(body), sum) {
		return nil, fmt.Errorf("%w: got %s want %s", ErrChecksum, sum, Checksum(body))
	}
	return strings.Split(body, ","), nil
}

// ParseRMC parses a $--RMC sentence from any talker (GP, GN, GL, ...).
// Sentences with status V return ErrNoFix.
func ParseRMC(line string) (Fix, error) {
	f, err := split(line)
	if err != nil {
		return Fix{}, err
	}
	if len(f[0]) != 5 || f[0][2:] != "RMC" {
		return Fix{}, ErrNotRMC
	}
	if len(f) < 10 {
		return Fix{}, fmt.Errorf("%w: %d fields", ErrMalformed, len(f))
	}
	if f[2] != "A" {
		return Fix{}, ErrNoFix
	}

	var fix Fix
	if fix.Time, err = parseTime(f[1], f[9]); err != nil {
		return Fix{}, err
	}
	if fix.Latitude, err = coordinate(f[3], f[4], 2, "N", "S"); err != nil {
		return Fix{}, err
	}
	if fix.Longitude, err = coordinate(f[5], f[6], 3, "E", "W"); err != nil {
		return Fix{}, err
	}
	if fix.SpeedKnots, err = optionalFloat(f[7]); err != nil {
		return Fix{}, err
	}
	if fix.Course, err = optionalFloat(f[8]); err != nil {
		return Fix{}, err
	}
	return fix, nil
}

// coordinate converts (d)ddmm.mmmm plus hemisphere to signed degrees.
func coordinate(v, hemi string, degDigits int, pos, neg string) (float64, error) {
	if len(v) < degDigits+2 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, v)
	}
	deg, err := strconv.Atoi(v[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, v)
	}
	minutes, err := strconv.ParseFloat(v[degDigits:], 64)
	if err != nil || minutes >= 60 {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformed, v)
	}
	out := float64(deg) + minutes/60
	switch hemi {
	case pos:
	case neg:
		out = -out
	default:
		return 0, fmt.Errorf("%w: hemisphere %q", ErrMalformed, hemi)
	}
	return out, nil
}

// parseTime combines hhmmss(.ss) and ddmmyy. Two digit years below 80 are
// in this century.
func parseTime(hms, dmy string) (time.Time, error) {
	if len(hms) < 6 || len(dmy) != 6 {
		return time.Time{}, fmt.Errorf("%w: time %q date %q", ErrMalformed, hms, dmy)
	}
	n := func(s string) int {
		v, err := strconv.Atoi(s)
		if err != nil {
			return -1
		}
		return v
	}
	hh, mm := n(hms[0:2]), n(hms[2:4])
	sec, err := strconv.ParseFloat(hms[4:], 64)
	day, mon, yy := n(dmy[0:2]), n(dmy[2:4]), n(dmy[4:6])
	if err != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 || sec < 0 || sec >= 61 ||
		day < 1 || day > 31 || mon < 1 || mon > 12 || yy < 0 {
		return time.Time{}, fmt.Errorf("%w: time %q date %q", ErrMalformed, hms, dmy)
	}
	year := 1900 + yy
	if yy < 80 {
		year = 2000 + yy
	}
	whole := int(sec)
	nanos := int((sec - float64(whole)) * 1e9)
	return time.Date(year, time.Month(mon), day, hh, mm, whole, nanos, time.UTC), nil
}

func optionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: number %q", ErrMalformed, s)
	}
	return v, nil
}
