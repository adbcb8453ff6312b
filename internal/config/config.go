// Package config loads the tracker's settings from .env files, an optional
// YAML file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/heliradar/tracker/internal/security"
	"github.com/heliradar/tracker/internal/serialmux"
	"github.com/heliradar/tracker/internal/store"
	"github.com/heliradar/tracker/internal/track"
)

// ErrMissingURI is returned when no database connection string is configured.
var ErrMissingURI = errors.New("MONGODB_URI is not set")

// EnvFiles are loaded before anything else. Missing files are ignored, and
// a variable already present in the environment is never replaced.
var EnvFiles = []string{".env.local", ".env"}

const maxFileSize = 1 << 20

// Config is the complete tracker configuration.
type Config struct {
	// MongoURI is required by the commands that open the store.
	MongoURI string `yaml:"mongodb_uri"`
	Database string `yaml:"database" validate:"required"`
	Listen   string `yaml:"listen" validate:"required,hostname_port"`
	// APIURL is the server the CLI commands talk to.
	APIURL string `yaml:"api_url" validate:"required,url"`
	// DebugRoutes mounts the /debug/ admin pages.
	DebugRoutes bool `yaml:"debug_routes"`

	FleetWindow     time.Duration `yaml:"fleet_window" validate:"gt=0s"`
	DashboardWindow time.Duration `yaml:"dashboard_window" validate:"gt=0s"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0s"`
	SimInterval     time.Duration `yaml:"sim_interval" validate:"gt=0s"`

	Replay ReplayConfig `yaml:"replay"`
	HTTP   HTTPConfig   `yaml:"http"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Redis  RedisConfig  `yaml:"redis"`
	GPS    GPSConfig    `yaml:"gps"`
}

type ReplayConfig struct {
	History time.Duration `yaml:"history" validate:"gt=0s"`
	Fleet   time.Duration `yaml:"fleet" validate:"gt=0s"`
	Admin   time.Duration `yaml:"admin" validate:"gt=0s"`
}

// HTTPConfig holds the server timeouts and the client timeout used by the
// CLI.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gt=0s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" validate:"gt=0s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" validate:"gt=0s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gt=0s"`
	ClientTimeout     time.Duration `yaml:"client_timeout" validate:"gt=0s"`
}

// KafkaConfig enables the ingest publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// RedisConfig enables the live geo index when URL is set.
type RedisConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// GPSConfig enables the serial GPS recorder when Port is set.
type GPSConfig struct {
	Port        string                `yaml:"port"`
	DeviceID    string                `yaml:"device_id" validate:"required_with=Port"`
	MinInterval time.Duration         `yaml:"min_interval" validate:"gte=0s"`
	Serial      serialmux.PortOptions `yaml:"serial"`
}

// Default returns the built-in settings. MongoURI is left empty.
func Default() *Config {
	return &Config{
		Database:        store.DefaultDatabase,
		Listen:          ":3000",
		APIURL:          "http://localhost:3000",
		FleetWindow:     track.FleetWindow,
		DashboardWindow: track.DashboardWindow,
		PollInterval:    3 * time.Second,
		SimInterval:     2 * time.Second,
		Replay: ReplayConfig{
			History: track.HistoryReplayDelay,
			Fleet:   track.FleetReplayDelay,
			Admin:   track.AdminReplayDelay,
		},
		HTTP: HTTPConfig{
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ClientTimeout:     10 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "tracker.points"},
		GPS: GPSConfig{
			MinInterval: time.Second,
			Serial:      serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate},
		},
	}
}

// Load builds the configuration for commands that open the store. path
// names an optional YAML file inside the working directory; an empty path
// skips it.
func Load(path string) (*Config, error) {
	cfg, err := LoadClient(path)
	if err != nil {
		return nil, err
	}
	if cfg.MongoURI == "" {
		return nil, ErrMissingURI
	}
	return cfg, nil
}

// LoadClient is Load for commands that only talk to a running server; no
// connection string is needed.
func LoadClient(path string) (*Config, error) {
	LoadEnvFiles()

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnvFiles loads EnvFiles into the process environment.
func LoadEnvFiles() {
	for _, f := range EnvFiles {
		_ = godotenv.Load(f)
	}
}

func (c *Config) loadFile(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if err := security.ValidatePathWithinDirectory(path, cwd); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	set(&c.MongoURI, "MONGODB_URI")
	set(&c.Database, "MONGODB_DB")
	set(&c.Listen, "TRACKER_LISTEN")
	set(&c.APIURL, "TRACKER_API")
	set(&c.Kafka.Topic, "KAFKA_TOPIC")
	set(&c.Redis.URL, "REDIS_URL")
	set(&c.GPS.Port, "GPS_PORT")
	set(&c.GPS.DeviceID, "GPS_DEVICE_ID")

	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = c.Kafka.Brokers[:0]
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the serial port settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.GPS.Serial.Normalize(); err != nil {
		return fmt.Errorf("gps serial: %w", err)
	}
	return nil
}
