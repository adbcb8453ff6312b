package mongodb

import (
	"encoding/json"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/heliradar/tracker/internal/model"
)

// tsField holds the parsed timestamp as a BSON date. Queries sort and filter
// on it because the client strings mix precisions and offsets;
// "timestamp" keeps the string exactly as sent.
const tsField = "_ts"

// byTimestamp orders by the parsed time. Documents written before _ts existed
// fall back to their timestamp string.
func byTimestamp(dir int) bson.D {
	return bson.D{{Key: tsField, Value: dir}, {Key: "timestamp", Value: dir}}
}

func keyFilter(key model.Key, id string) bson.D {
	return bson.D{{Key: string(key), Value: id}}
}

func recentPipeline(key model.Key, since time.Time) mongo.Pipeline {
	field := string(key)
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: tsField, Value: bson.D{{Key: "$gte", Value: primitive.NewDateTimeFromTime(since)}}},
			{Key: field, Value: bson.D{{Key: "$exists", Value: true}, {Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$sort", Value: byTimestamp(-1)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "doc", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
		{{Key: "$replaceRoot", Value: bson.D{{Key: "newRoot", Value: "$doc"}}}},
		{{Key: "$sort", Value: byTimestamp(-1)}},
	}
}

func document(p model.Point) (bson.M, error) {
	ts, err := p.Time()
	if err != nil {
		return nil, err
	}
	doc := bson.M(p.Fields())
	doc[tsField] = primitive.NewDateTimeFromTime(ts)
	return doc, nil
}

// pointFromDoc converts a stored document back to a point. Object ids become
// their hex form.
func pointFromDoc(doc bson.M) (model.Point, error) {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if k == tsField {
			continue
		}
		if oid, ok := v.(primitive.ObjectID); ok {
			v = oid.Hex()
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return model.Point{}, err
	}
	var p model.Point
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Point{}, err
	}
	return p, nil
}

func distinctStrings(vals []interface{}) []string {
	ids := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	sort.Strings(ids)
	return ids
}
