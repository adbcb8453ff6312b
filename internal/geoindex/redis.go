// Package geoindex keeps the newest position of every track in a Redis GEO
// set so live positions can be searched by distance.
package geoindex

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/heliradar/tracker/internal/model"
)

// DefaultLimit caps a nearby search when the caller gives no limit.
const DefaultLimit = 50

// Nearby is one result of a radius search.
type Nearby struct {
	TrackID    string  `json:"track_id"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	DistanceKm float64 `json:"distance_km"`
}

// Redis implements publish.Observer over a GEO sorted set per collection.
type Redis struct {
	client *redis.Client
}

// Dial connects to the Redis server at url (redis://host:port/db).
func Dial(ctx context.Context, url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client}, nil
}

// LiveKey is the GEO set holding a collection's live positions.
func LiveKey(v model.Variant) string {
	return string(v.Collection) + ":live"
}

// Observe moves each point's track to its new position. A point at exactly
// (0, 0) removes the track instead.
func (r *Redis) Observe(ctx context.Context, v model.Variant, points ...model.Point) error {
	adds, removes := locations(v, points)
	key := LiveKey(v)
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(adds) > 0 {
			pipe.GeoAdd(ctx, key, adds...)
		}
		if len(removes) > 0 {
			pipe.ZRem(ctx, key, removes...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis geo update: %w", err)
	}
	return nil
}

// Search returns tracks within radiusKm of (lat, lon), nearest first.
func (r *Redis) Search(ctx context.Context, v model.Variant, lat, lon, radiusKm float64, limit int) ([]Nearby, error) {
	locs, err := r.client.GeoSearchLocation(ctx, LiveKey(v), searchQuery(lat, lon, radiusKm, limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geo search: %w", err)
	}
	return toNearby(locs), nil
}

func (r *Redis) Close() error { return r.client.Close() }

// locations keeps the last point per track; later points win.
func locations(v model.Variant, points []model.Point) (adds []*redis.GeoLocation, removes []any) {
	latest := make(map[string]model.Point, len(points))
	for _, p := range points {
		if id := v.TrackOf(p); id != "" {
			latest[id] = p
		}
	}
	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := latest[id]
		if p.Latitude == 0 && p.Longitude == 0 {
			removes = append(removes, id)
			continue
		}
		adds = append(adds, &redis.GeoLocation{Name: id, Longitude: p.Longitude, Latitude: p.Latitude})
	}
	return adds, removes
}

func searchQuery(lat, lon, radiusKm float64, limit int) *redis.GeoSearchLocationQuery {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lon,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}
}

func toNearby(locs []redis.GeoLocation) []Nearby {
	out := make([]Nearby, len(locs))
	for i, l := range locs {
		out[i] = Nearby{TrackID: l.Name, Latitude: l.Latitude, Longitude: l.Longitude, DistanceKm: l.Dist}
	}
	return out
}
