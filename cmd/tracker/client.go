package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/heliradar/tracker/internal/client"
	"github.com/heliradar/tracker/internal/config"
	"github.com/heliradar/tracker/internal/fleet"
	"github.com/heliradar/tracker/internal/httputil"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/simulate"
	"github.com/heliradar/tracker/internal/timeutil"
	"github.com/heliradar/tracker/internal/track"
	"github.com/heliradar/tracker/internal/units"
)

// Default simulation origin, the centre of Bengaluru.
const (
	defaultSimLat = 12.9716
	defaultSimLon = 77.5946
)

func newClient(cfg *config.Config, apiURL string) *client.Client {
	if apiURL == "" {
		apiURL = cfg.APIURL
	}
	return client.New(apiURL, httputil.NewStandardClient(cfg.HTTP.ClientTimeout))
}

func variantFlag(name string) (model.Variant, error) {
	v, ok := model.VariantByName(name)
	if !ok {
		return model.Variant{}, fmt.Errorf("unknown variant %q: expected device or mobile", name)
	}
	return v, nil
}

func runSimulate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("simulate", stderr)
	apiURL := fs.String("api", "", "Tracker API base URL (overrides config)")
	lat := fs.Float64("lat", defaultSimLat, "Start latitude")
	lon := fs.Float64("lon", defaultSimLon, "Start longitude")
	limit := fs.Int("limit", 0, "Stop after this many points (0 runs until interrupted)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}

	sim := simulate.New(newClient(cfg, *apiURL), orb.Point{*lon, *lat}, simulate.Options{
		Interval: cfg.SimInterval,
		Limit:    *limit,
	})
	fmt.Fprintf(stdout, "simulating %s from %.5f,%.5f every %s\n", sim.ID(), *lat, *lon, cfg.SimInterval)
	err = sim.Run(ctx)
	sent, failed := sim.Stats()
	fmt.Fprintf(stdout, "%s: sent=%d failed=%d\n", sim.ID(), sent, failed)
	return err
}

func runFleet(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("fleet", stderr)
	apiURL := fs.String("api", "", "Tracker API base URL (overrides config)")
	variantName := fs.String("variant", model.Mobile.Name, "Endpoint variant: device or mobile")
	once := fs.Bool("once", false, "Poll once, print the board and exit")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}
	v, err := variantFlag(*variantName)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	p := &fleet.Poller{
		Source:   newClient(cfg, *apiURL),
		Board:    fleet.NewBoard(),
		Variant:  v,
		Interval: cfg.PollInterval,
		OnChange: func(d fleet.Diff) {
			mu.Lock()
			defer mu.Unlock()
			printDiff(stdout, d)
		},
	}
	p.Enable()
	defer p.Disable()

	if *once {
		if _, err := p.Step(ctx); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		printBoard(stdout, p.Board.Markers())
		return nil
	}
	return p.Run(ctx)
}

func printDiff(w io.Writer, d fleet.Diff) {
	for _, s := range d.Added {
		fmt.Fprintf(w, "+ %s\n", formatSnapshot(s))
	}
	for _, s := range d.Moved {
		fmt.Fprintf(w, "~ %s\n", formatSnapshot(s))
	}
	for _, id := range d.Removed {
		fmt.Fprintf(w, "- %s\n", id)
	}
}

func printBoard(w io.Writer, snaps []model.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no active tracks")
		return
	}
	for _, s := range snaps {
		fmt.Fprintln(w, formatSnapshot(s))
	}
}

func formatSnapshot(s model.Snapshot) string {
	agent := s.AgentID
	if agent == "" {
		agent = track.UnknownAgent
	}
	return fmt.Sprintf("%s agent=%s at %.5f,%.5f %s", s.ID, agent, s.Latitude, s.Longitude, s.Timestamp)
}

func runReplay(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("replay", stderr)
	apiURL := fs.String("api", "", "Tracker API base URL (overrides config)")
	variantName := fs.String("variant", model.Mobile.Name, "Endpoint variant: device or mobile")
	id := fs.String("id", "", "Track id to replay (required)")
	view := fs.String("view", "history", "Pacing: history, fleet or admin")
	unit := fs.String("units", units.KM, "Distance units: km, mi or nm")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		fmt.Fprintln(stderr, "Error: --id is required")
		fs.Usage()
		return errUsage
	}
	if !units.IsValidDistance(*unit) {
		return fmt.Errorf("invalid units %q", *unit)
	}
	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		return err
	}
	v, err := variantFlag(*variantName)
	if err != nil {
		return err
	}
	delay, err := replayDelay(cfg.Replay, *view)
	if err != nil {
		return err
	}

	points, err := newClient(cfg, *apiURL).History(ctx, v, v.TrackKey, *id)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("track %s has no points", *id)
	}
	return replay(ctx, timeutil.RealClock{}, delay, *id, points, *unit, stdout)
}

func replayDelay(rc config.ReplayConfig, view string) (time.Duration, error) {
	switch strings.ToLower(view) {
	case "history":
		return rc.History, nil
	case "fleet":
		return rc.Fleet, nil
	case "admin":
		return rc.Admin, nil
	}
	return 0, fmt.Errorf("unknown view %q: expected history, fleet or admin", view)
}

// replay prints one line per frame with the distance flown so far, then the
// track summary.
func replay(ctx context.Context, clock timeutil.Clock, delay time.Duration, id string, points []model.Point, unit string, w io.Writer) error {
	err := track.Play(ctx, clock, delay, track.Replay(points), func(f track.Frame) {
		fmt.Fprintf(w, "%4d %s %.5f,%.5f %s\n", f.Index+1, f.Point.Timestamp,
			f.Point.Latitude, f.Point.Longitude, units.FormatDistance(track.PathDistance(f.Path), unit))
	})
	if err != nil {
		return err
	}
	sum, err := track.Summarize(id, points, clock.Now(), track.Options{DistanceUnit: unit})
	if err != nil {
		if errors.Is(err, track.ErrEmptyTrack) {
			return nil
		}
		return err
	}
	fmt.Fprintf(w, "%s: %s, %s, %d points, %s\n", sum.ID, sum.Duration, sum.Distance, sum.Points, sum.Status)
	log.Printf("replayed %s (%d points)", id, sum.Points)
	return nil
}
