// Package feed exports live track positions as a GTFS-Realtime
// VehiclePositions feed.
package feed

import (
	"fmt"
	"io"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/heliradar/tracker/internal/model"
)

const gtfsRealtimeVersion = "2.0"

const (
	ContentTypeProto = "application/x-protobuf"
	ContentTypeJSON  = "application/json"
)

// VehiclePositions builds a full-dataset feed with one entity per snapshot.
// Snapshots without a parseable timestamp are still included, without a
// position timestamp.
func VehiclePositions(snaps []model.Snapshot, now time.Time) *gtfsrtpb.FeedMessage {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}
	for _, s := range snaps {
		vp := &gtfsrtpb.VehiclePosition{
			Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleID(s))},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(float32(s.Latitude)),
				Longitude: proto.Float32(float32(s.Longitude)),
			},
		}
		if s.AgentID != "" {
			vp.Vehicle.Label = proto.String(s.AgentID)
		}
		if s.TripID != "" {
			vp.Trip = &gtfsrtpb.TripDescriptor{TripId: proto.String(s.TripID)}
		}
		if ts, err := model.ParseTimestamp(s.Timestamp); err == nil {
			vp.Timestamp = proto.Uint64(uint64(ts.Unix()))
		}
		fm.Entity = append(fm.Entity, &gtfsrtpb.FeedEntity{
			Id:      proto.String(s.ID),
			Vehicle: vp,
		})
	}
	return fm
}

func vehicleID(s model.Snapshot) string {
	switch {
	case s.DeviceID != "":
		return s.DeviceID
	case s.AgentID != "":
		return s.AgentID
	}
	return s.ID
}

// Write encodes fm as protobuf, or as protojson when format is "json". It
// returns the content type written.
func Write(w io.Writer, fm *gtfsrtpb.FeedMessage, format string) (string, error) {
	var (
		b   []byte
		err error
		ct  = ContentTypeProto
	)
	if strings.EqualFold(format, "json") {
		ct = ContentTypeJSON
		b, err = protojson.MarshalOptions{UseProtoNames: true}.Marshal(fm)
	} else {
		b, err = proto.Marshal(fm)
	}
	if err != nil {
		return "", fmt.Errorf("encode feed: %w", err)
	}
	_, err = w.Write(b)
	return ct, err
}
