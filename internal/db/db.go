package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/heliradar/tracker/internal/model"
)

// ErrNoAgent is returned by FindAgent when the agent id is unknown.
var ErrNoAgent = errors.New("agent not found")

type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA temp_store = MEMORY",
}

// NewDB opens the SQLite database at path, applies connection pragmas and
// brings the schema up to date.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps pragmas and :memory: databases consistent.
	sqlDB.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func column(k model.Key) (string, error) {
	if !k.Valid() {
		return "", fmt.Errorf("unknown key %q", k)
	}
	return string(k), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const insertPoint = `
	INSERT INTO points (
		id, collection, device_id, trip_id, agent_id,
		latitude, longitude, timestamp, ts_unix_ms, mode, doc
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, e execer, c model.Collection, p model.Point) error {
	ts, err := p.Time()
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode point: %w", err)
	}
	_, err = e.ExecContext(ctx, insertPoint,
		p.ID, string(c),
		nullable(p.DeviceID), nullable(p.TripID), nullable(p.AgentID),
		p.Latitude, p.Longitude, p.Timestamp, ts.UnixMilli(),
		nullable(p.Mode), string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to insert point: %w", err)
	}
	return nil
}

// Insert stores one point. Points without an id are given a random UUID.
func (db *DB) Insert(ctx context.Context, c model.Collection, p model.Point) error {
	return insert(ctx, db.DB, c, p)
}

// InsertMany stores all points in a single transaction.
func (db *DB) InsertMany(ctx context.Context, c model.Collection, ps []model.Point) error {
	if len(ps) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if err := insert(ctx, tx, c, p); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (db *DB) History(ctx context.Context, c model.Collection, key model.Key, id string) ([]model.Point, error) {
	col, err := column(key)
	if err != nil {
		return nil, err
	}
	return db.queryDocs(ctx, `
		SELECT doc FROM points
		WHERE collection = ? AND `+col+` = ?
		ORDER BY ts_unix_ms ASC, rowid ASC`,
		string(c), id)
}

func (db *DB) Latest(ctx context.Context, c model.Collection, key model.Key, id string) (*model.Point, error) {
	col, err := column(key)
	if err != nil {
		return nil, err
	}
	points, err := db.queryDocs(ctx, `
		SELECT doc FROM points
		WHERE collection = ? AND `+col+` = ?
		ORDER BY ts_unix_ms DESC, rowid DESC
		LIMIT 1`,
		string(c), id)
	if err != nil || len(points) == 0 {
		return nil, err
	}
	return &points[0], nil
}

// Recent keeps the newest point per track among points at or after since.
func (db *DB) Recent(ctx context.Context, c model.Collection, key model.Key, since time.Time) ([]model.Point, error) {
	col, err := column(key)
	if err != nil {
		return nil, err
	}
	return db.queryDocs(ctx, `
		SELECT doc FROM (
			SELECT doc, ts_unix_ms, rowid AS rid,
				ROW_NUMBER() OVER (
					PARTITION BY `+col+`
					ORDER BY ts_unix_ms DESC, rowid DESC
				) AS rn
			FROM points
			WHERE collection = ? AND ts_unix_ms >= ? AND `+col+` IS NOT NULL
		)
		WHERE rn = 1
		ORDER BY ts_unix_ms DESC, rid DESC`,
		string(c), since.UnixMilli())
}

func (db *DB) Distinct(ctx context.Context, c model.Collection, key model.Key) ([]string, error) {
	col, err := column(key)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT `+col+` FROM points
		WHERE collection = ? AND `+col+` IS NOT NULL
		ORDER BY `+col,
		string(c))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *DB) All(ctx context.Context, c model.Collection, limit int) ([]model.Point, error) {
	if limit <= 0 {
		limit = -1
	}
	return db.queryDocs(ctx, `
		SELECT doc FROM points
		WHERE collection = ?
		ORDER BY ts_unix_ms ASC, rowid ASC
		LIMIT ?`,
		string(c), limit)
}

func (db *DB) queryDocs(ctx context.Context, query string, args ...any) ([]model.Point, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []model.Point{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p model.Point
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("failed to decode stored point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// FindAgent returns the agent with the given id or ErrNoAgent.
func (db *DB) FindAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var a model.Agent
	err := db.QueryRowContext(ctx,
		`SELECT agent_id, name, password FROM agents WHERE agent_id = ?`, agentID,
	).Scan(&a.AgentID, &a.Name, &a.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoAgent
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAgent creates the agent or replaces its name and password.
func (db *DB) SaveAgent(ctx context.Context, a model.Agent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, name, password)
		VALUES (?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			name = excluded.name,
			password = excluded.password,
			updated_at = CURRENT_TIMESTAMP`,
		a.AgentID, a.Name, a.Password)
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", a.AgentID, err)
	}
	return nil
}
