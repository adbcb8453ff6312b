package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/heliradar/tracker/internal/api"
	"github.com/heliradar/tracker/internal/config"
	"github.com/heliradar/tracker/internal/geoindex"
	"github.com/heliradar/tracker/internal/gps"
	"github.com/heliradar/tracker/internal/publish"
	"github.com/heliradar/tracker/internal/serialmux"
	"github.com/heliradar/tracker/internal/store"
)

const shutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs, configPath := newFlagSet("serve", stderr)
	listen := fs.String("listen", "", "Listen address (overrides config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	return serve(ctx, cfg)
}

// sinks are the optional observers and the nearby searcher built from the
// Kafka and Redis settings.
type sinks struct {
	observers []publish.Observer
	nearby    api.NearbySearcher
}

func openSinks(ctx context.Context, cfg *config.Config) (sinks, error) {
	var s sinks
	if len(cfg.Kafka.Brokers) > 0 {
		s.observers = append(s.observers, publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Printf("publishing points to kafka topic %s", cfg.Kafka.Topic)
	}
	if cfg.Redis.URL != "" {
		geo, err := geoindex.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			publish.CloseAll(s.observers)
			return sinks{}, err
		}
		s.observers = append(s.observers, geo)
		s.nearby = geo
		log.Print("live geo index enabled")
	}
	return s, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The store connects lazily; a database that is down at start-up is
	// retried on the first request.
	st := store.Shared(cfg.MongoURI, store.Options{Database: cfg.Database})
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Printf("store not reachable yet: %v", err)
	}

	out, err := openSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publish.CloseAll(out.observers); err != nil {
			log.Printf("failed to close publishers: %v", err)
		}
	}()

	gpsSerial, err := serialmux.Open(cfg.GPS.Port, cfg.GPS.Serial)
	if err != nil {
		return fmt.Errorf("failed to open GPS port: %w", err)
	}

	srv := api.NewServer(st, api.Options{
		FleetWindow:     cfg.FleetWindow,
		DashboardWindow: cfg.DashboardWindow,
		Observers:       out.observers,
		Nearby:          out.nearby,
		GPSPort:         cfg.GPS.Port,
	})
	mux := srv.ServeMux()
	if cfg.DebugRoutes {
		if sqlDB, ok := store.SQLite(st); ok {
			if err := sqlDB.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach database admin routes: %v", err)
			}
		}
		gpsSerial.AttachAdminRoutes(mux)
	}

	var wg sync.WaitGroup

	if cfg.GPS.Port != "" {
		// run the monitor routine to manage IO on the serial port
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gpsSerial.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor GPS port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		if cfg.GPS.MinInterval > 0 {
			if err := gpsSerial.SendCommand(gps.UpdateRateCommand(cfg.GPS.MinInterval)); err != nil {
				log.Printf("failed to set GPS update rate: %v", err)
			}
		}

		rec := &gps.Recorder{
			Lines:       gpsSerial,
			Sink:        srv,
			DeviceID:    cfg.GPS.DeviceID,
			MinInterval: cfg.GPS.MinInterval,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("GPS recorder stopped: %v", err)
			}
			recorded, dropped := rec.Stats()
			log.Printf("GPS recorder terminated: recorded=%d dropped=%d", recorded, dropped)
		}()
		log.Printf("recording GPS fixes from %s as %s", cfg.GPS.Port, cfg.GPS.DeviceID)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	cancel()
	gpsSerial.Close()
	wg.Wait()
	log.Print("server stopped")
	if serveErr != nil {
		return fmt.Errorf("failed to start server: %w", serveErr)
	}
	return nil
}
