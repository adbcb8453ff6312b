// Package mongodb stores location points and agents in MongoDB, using the
// collection layout of the helicopterTracker database.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
)

// ErrNoAgent is returned by FindAgent when the agent id is unknown.
var ErrNoAgent = errors.New("agent not found")

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client for uri and selects database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	monitoring.Logf("connected to MongoDB database %s", database)
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) coll(c model.Collection) *mongo.Collection {
	return s.db.Collection(string(c))
}

func (s *Store) Insert(ctx context.Context, c model.Collection, p model.Point) error {
	doc, err := document(p)
	if err != nil {
		return err
	}
	res, err := s.coll(c).InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to insert point: %w", err)
	}
	monitoring.Logf("inserted %v into %s", res.InsertedID, c)
	return nil
}

func (s *Store) InsertMany(ctx context.Context, c model.Collection, ps []model.Point) error {
	if len(ps) == 0 {
		return nil
	}
	docs := make([]interface{}, len(ps))
	for i, p := range ps {
		doc, err := document(p)
		if err != nil {
			return err
		}
		docs[i] = doc
	}
	if _, err := s.coll(c).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert %d points: %w", len(ps), err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, c model.Collection, key model.Key, id string) ([]model.Point, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	cur, err := s.coll(c).Find(ctx, keyFilter(key, id), options.Find().SetSort(byTimestamp(1)))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (s *Store) Latest(ctx context.Context, c model.Collection, key model.Key, id string) (*model.Point, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	var doc bson.M
	err := s.coll(c).FindOne(ctx, keyFilter(key, id), options.FindOne().SetSort(byTimestamp(-1))).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := pointFromDoc(doc)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) Recent(ctx context.Context, c model.Collection, key model.Key, since time.Time) ([]model.Point, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	cur, err := s.coll(c).Aggregate(ctx, recentPipeline(key, since))
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (s *Store) Distinct(ctx context.Context, c model.Collection, key model.Key) ([]string, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("unknown key %q", key)
	}
	vals, err := s.coll(c).Distinct(ctx, string(key), bson.D{})
	if err != nil {
		return nil, err
	}
	return distinctStrings(vals), nil
}

func (s *Store) All(ctx context.Context, c model.Collection, limit int) ([]model.Point, error) {
	opts := options.Find().SetSort(byTimestamp(1))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll(c).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll(ctx, cur)
}

func (s *Store) FindAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var a model.Agent
	err := s.coll(model.Agents).FindOne(ctx, bson.D{{Key: "agentId", Value: agentID}}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoAgent
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) SaveAgent(ctx context.Context, a model.Agent) error {
	_, err := s.coll(model.Agents).UpdateOne(ctx,
		bson.D{{Key: "agentId", Value: a.AgentID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: a.Name},
			{Key: "password", Value: a.Password},
		}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", a.AgentID, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func decodeAll(ctx context.Context, cur *mongo.Cursor) ([]model.Point, error) {
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	points := make([]model.Point, 0, len(docs))
	for _, doc := range docs {
		p, err := pointFromDoc(doc)
		if err != nil {
			monitoring.Logf("skipping malformed document %v: %v", doc["_id"], err)
			continue
		}
		points = append(points, p)
	}
	return points, nil
}
