// Package store defines the point store used by the API and the process-wide
// handle that opens it on first use.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heliradar/tracker/internal/db"
	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/mongodb"
)

var (
	// ErrUnknownScheme is returned by Open for connection strings that name
	// neither a MongoDB deployment nor a SQLite file.
	ErrUnknownScheme = errors.New("unsupported connection string scheme")
	// ErrNotFound is returned by FindAgent when no agent matches.
	ErrNotFound = errors.New("not found")
)

// Store persists location points and agent credentials.
type Store interface {
	Insert(ctx context.Context, c model.Collection, p model.Point) error
	InsertMany(ctx context.Context, c model.Collection, ps []model.Point) error
	// History returns every point whose key field equals id, oldest first.
	History(ctx context.Context, c model.Collection, key model.Key, id string) ([]model.Point, error)
	// Latest returns the newest point whose key field equals id, or nil.
	Latest(ctx context.Context, c model.Collection, key model.Key, id string) (*model.Point, error)
	// Recent returns the newest point of every track with a point at or
	// after since, newest first.
	Recent(ctx context.Context, c model.Collection, key model.Key, since time.Time) ([]model.Point, error)
	Distinct(ctx context.Context, c model.Collection, key model.Key) ([]string, error)
	// All returns up to limit points of the collection, oldest first. A
	// limit of zero means no limit.
	All(ctx context.Context, c model.Collection, limit int) ([]model.Point, error)
	FindAgent(ctx context.Context, agentID string) (*model.Agent, error)
	SaveAgent(ctx context.Context, a model.Agent) error
	Ping(ctx context.Context) error
	Close() error
}

// Options tune how Open connects.
type Options struct {
	// Database is the MongoDB database name.
	Database string
}

const DefaultDatabase = "helicopterTracker"

// Open connects to the store named by uri. mongodb:// and mongodb+srv://
// select MongoDB; sqlite://, file: and :memory: select an embedded SQLite
// database.
func Open(ctx context.Context, uri string, opts Options) (Store, error) {
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	switch {
	case strings.HasPrefix(uri, "mongodb://"), strings.HasPrefix(uri, "mongodb+srv://"):
		s, err := mongodb.Connect(ctx, uri, opts.Database)
		if err != nil {
			return nil, err
		}
		return mongoStore{s}, nil
	case strings.HasPrefix(uri, "sqlite://"):
		return openSQLite(strings.TrimPrefix(uri, "sqlite://"))
	case strings.HasPrefix(uri, "file:"), uri == ":memory:":
		return openSQLite(uri)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, redact(uri))
}

func openSQLite(path string) (Store, error) {
	d, err := db.NewDB(path)
	if err != nil {
		return nil, err
	}
	return sqliteStore{d}, nil
}

// redact drops everything after the scheme so credentials never reach logs.
func redact(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i+3] + "..."
	}
	if len(uri) > 8 {
		return uri[:8] + "..."
	}
	return uri
}

// The backends report a missing agent with their own sentinel; these
// adapters translate it to ErrNotFound.

type sqliteStore struct{ *db.DB }

func (s sqliteStore) FindAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	a, err := s.DB.FindAgent(ctx, agentID)
	if errors.Is(err, db.ErrNoAgent) {
		return nil, ErrNotFound
	}
	return a, err
}

type mongoStore struct{ *mongodb.Store }

func (s mongoStore) FindAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	a, err := s.Store.FindAgent(ctx, agentID)
	if errors.Is(err, mongodb.ErrNoAgent) {
		return nil, ErrNotFound
	}
	return a, err
}

// SQLite exposes the embedded database behind s, if any, so callers can mount
// its admin routes.
func SQLite(s Store) (*db.DB, bool) {
	switch v := s.(type) {
	case sqliteStore:
		return v.DB, true
	case *Handle:
		if inner := v.peek(); inner != nil {
			return SQLite(inner)
		}
	}
	return nil, false
}
