// Package publish forwards stored points to downstream systems. The API
// server calls every configured Observer after a successful write.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/heliradar/tracker/internal/model"
	"github.com/heliradar/tracker/internal/monitoring"
)

// Observer is told about every point after it has been stored.
type Observer interface {
	Observe(ctx context.Context, v model.Variant, points ...model.Point) error
	Close() error
}

// Fanout calls each observer in turn. Failures are logged and never stop
// the remaining observers.
func Fanout(ctx context.Context, observers []Observer, v model.Variant, points ...model.Point) {
	for _, o := range observers {
		if err := o.Observe(ctx, v, points...); err != nil {
			monitoring.Logf("[publish] %T: %v", o, err)
		}
	}
}

// CloseAll closes every observer and joins the errors.
func CloseAll(observers []Observer) error {
	var errs []error
	for _, o := range observers {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Event is the Kafka message body.
type Event struct {
	Variant    string           `json:"variant"`
	Collection model.Collection `json:"collection"`
	TrackID    string           `json:"track_id"`
	Point      model.Point      `json:"point"`
}

// MessageWriter is the part of *kafka.Writer Kafka uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per point, keyed by track id so a track's
// points land on one partition in order.
type Kafka struct {
	w MessageWriter
}

// NewKafka returns a publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	})
}

// NewKafkaWriter wraps an existing writer.
func NewKafkaWriter(w MessageWriter) *Kafka {
	return &Kafka{w: w}
}

func (k *Kafka) Observe(ctx context.Context, v model.Variant, points ...model.Point) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(points))
	for _, p := range points {
		id := v.TrackOf(p)
		body, err := json.Marshal(Event{Variant: v.Name, Collection: v.Collection, TrackID: id, Point: p})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(id),
			Value:   body,
			Headers: []kafka.Header{{Key: "variant", Value: []byte(v.Name)}},
		})
	}
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.w.Close() }
