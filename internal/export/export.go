// Package export writes stored tracks to files as GeoJSON, PNG plots or
// interactive HTML charts.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/heliradar/tracker/internal/chart"
	"github.com/heliradar/tracker/internal/fsutil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/security"
	"github.com/heliradar/tracker/internal/track"
)

type Format string

const (
	GeoJSON Format = "geojson"
	PNG     Format = "png"
	HTML    Format = "html"
)

var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat accepts geojson, png or html.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case GeoJSON, PNG, HTML:
		return f, nil
	}
	return "", fmt.Errorf("%w %q: expected geojson, png or html", ErrUnknownFormat, s)
}

// Exporter writes one file per track into Dir.
type Exporter struct {
	FS  fsutil.FileSystem
	Dir string
	// Validate vets every output path; nil means security.ValidateExportPath.
	Validate func(path string) error
}

// Track writes the points of track id and returns the path written. The
// file name is the sanitised id with the format's extension.
func (e Exporter) Track(id string, points []model.Point, f Format) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("track %s: %w", id, chart.ErrNoPoints)
	}
	validate := e.Validate
	if validate == nil {
		validate = security.ValidateExportPath
	}

	path := filepath.Join(e.Dir, security.SanitizeFilename(id)+"."+string(f))
	if err := validate(path); err != nil {
		return "", err
	}
	if err := e.FS.MkdirAll(e.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", e.Dir, err)
	}
	out, err := e.FS.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(out, id, points, f); err != nil {
		out.Close()
		return "", fmt.Errorf("export %s: %w", id, err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Tracks exports every track in tracks, in id order. It stops at the first
// error and returns the paths written so far.
func (e Exporter) Tracks(tracks map[string][]model.Point, f Format) ([]string, error) {
	ids := make([]string, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var paths []string
	for _, id := range ids {
		path, err := e.Track(id, tracks[id], f)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func write(w io.Writer, id string, points []model.Point, f Format) error {
	switch f {
	case GeoJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(track.Feature(id, points))
	case PNG:
		p, err := chart.Plot(id, points)
		if err != nil {
			return err
		}
		return chart.WritePNG(w, p)
	case HTML:
		return chart.HTML(w, id, points)
	}
	return fmt.Errorf("%w %q", ErrUnknownFormat, f)
}
