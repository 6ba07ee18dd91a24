package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/pkg/rabbitmq"
)

// InfluxMirror writes every record as one point tagged by sensor.
type InfluxMirror struct {
	writeAPI    api.WriteAPIBlocking
	measurement string
}

func NewInfluxMirror(w api.WriteAPIBlocking, measurement string) *InfluxMirror {
	if measurement == "" {
		measurement = "road_conditions"
	}
	return &InfluxMirror{writeAPI: w, measurement: sanitizeMeasurement(measurement)}
}

func (m *InfluxMirror) Name() string { return "influx" }

func (m *InfluxMirror) Mirror(ctx context.Context, rec model.SensorRecord) error {
	p, err := RecordPoint(m.measurement, rec)
	if err != nil {
		return err
	}
	return m.writeAPI.WritePoint(ctx, p)
}

// RecordPoint maps a record to a point: sensor_id and location_name become
// tags, timestamp the point time, every other field a point field.
func RecordPoint(measurement string, rec model.SensorRecord) (*write.Point, error) {
	tags := map[string]string{"sensor_id": rec.SensorID()}
	fields := make(map[string]interface{}, rec.Len())
	var ts time.Time

	for _, f := range rec.Fields() {
		switch f.Name {
		case model.FieldSensorID:
		case model.FieldLocationName:
			if s, ok := f.Value.(string); ok && s != "" {
				tags["location_name"] = s
			}
		case model.FieldTimestamp:
			s, _ := f.Value.(string)
			t, err := time.Parse(model.TimestampLayout, s)
			if err != nil {
				return nil, fmt.Errorf("record timestamp %q: %w", s, err)
			}
			ts = t
		default:
			fields[f.Name] = f.Value
		}
	}
	if ts.IsZero() {
		return nil, fmt.Errorf("record for sensor %s has no timestamp", rec.SensorID())
	}
	return influxdb2.NewPoint(measurement, tags, fields, ts), nil
}

func sanitizeMeasurement(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// MQTTMirror publishes each record to <prefix>/<sensor_id>.
type MQTTMirror struct {
	pub rabbitmq.IPublisher
}

func NewMQTTMirror(pub rabbitmq.IPublisher) *MQTTMirror {
	return &MQTTMirror{pub: pub}
}

func (m *MQTTMirror) Name() string { return "mqtt" }

func (m *MQTTMirror) Mirror(_ context.Context, rec model.SensorRecord) error {
	return m.pub.PublishJSON(rec.SensorID(), rec)
}
