package main

import (
	"context"
	"fmt"
	"io"

	"github.com/heliradar/tracker/internal/config"
	"github.com/heliradar/tracker/internal/export"
	"github.com/heliradar/tracker/internal/fsutil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/store"
)

func runExport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("export", stderr)
	variantName := fs.String("variant", model.Device.Name, "Endpoint variant: device or mobile")
	id := fs.String("id", "", "Track id to export (default: every track)")
	format := fs.String("format", string(export.GeoJSON), "Output format: geojson, png or html")
	dir := fs.String("dir", "exports", "Output directory (inside the working or temp directory)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		return err
	}
	v, err := variantFlag(*variantName)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.MongoURI, store.Options{Database: cfg.Database})
	if err != nil {
		return err
	}
	defer st.Close()

	tracks, err := loadTracks(ctx, st, v, *id)
	if err != nil {
		return err
	}
	e := export.Exporter{FS: fsutil.OSFileSystem{}, Dir: *dir}
	paths, err := e.Tracks(tracks, f)
	for _, p := range paths {
		fmt.Fprintln(stdout, p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d track(s)\n", len(paths))
	return nil
}

// loadTracks returns the named track, or every track of the variant when id
// is empty.
func loadTracks(ctx context.Context, st store.Store, v model.Variant, id string) (map[string][]model.Point, error) {
	if id != "" {
		points, err := st.History(ctx, v.Collection, v.TrackKey, id)
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, fmt.Errorf("track %s: %w", id, store.ErrNotFound)
		}
		return map[string][]model.Point{id: points}, nil
	}

	points, err := st.All(ctx, v.Collection, 0)
	if err != nil {
		return nil, err
	}
	tracks := make(map[string][]model.Point)
	for _, p := range points {
		if tid := v.TrackOf(p); tid != "" {
			tracks[tid] = append(tracks[tid], p)
		}
	}
	return tracks, nil
}
