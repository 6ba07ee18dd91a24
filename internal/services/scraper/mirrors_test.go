package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

func decodedRecord(t *testing.T) model.SensorRecord {
	t.Helper()
	lat, lon := 30.27, -97.74
	rec, err := model.Decode(model.DefaultSchema(), dummyLine, model.Derived{
		SensorID:     "17",
		FetchedAt:    fetchTime,
		Latitude:     &lat,
		Longitude:    &lon,
		LocationName: "Lamar & 5th",
	})
	require.NoError(t, err)
	return rec
}

func TestRecordPoint(t *testing.T) {
	p, err := RecordPoint("road_conditions", decodedRecord(t))
	require.NoError(t, err)

	assert.Equal(t, "road_conditions", p.Name())
	assert.True(t, p.Time().Equal(fetchTime))

	tags := map[string]string{}
	for _, tg := range p.TagList() {
		tags[tg.Key] = tg.Value
	}
	assert.Equal(t, map[string]string{"sensor_id": "17", "location_name": "Lamar & 5th"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Len(t, fields, model.DefaultSchema().Width()+2)
	assert.EqualValues(t, 1808, fields["voltage_y"])
	assert.Equal(t, "DRY", fields["condition_text_measured"])
	assert.Equal(t, 30.27, fields["lat"])
}

func TestSanitizeMeasurement(t *testing.T) {
	assert.Equal(t, "road_conditions_v2", sanitizeMeasurement("road conditions.v2"))
}

type memPublisher struct {
	subtopics []string
	payloads  []any
}

func (p *memPublisher) PublishJSON(subtopic string, v any) error {
	p.subtopics = append(p.subtopics, subtopic)
	p.payloads = append(p.payloads, v)
	return nil
}

func TestMQTTMirrorPublishesPerSensor(t *testing.T) {
	pub := &memPublisher{}
	m := NewMQTTMirror(pub)
	require.NoError(t, m.Mirror(context.Background(), decodedRecord(t)))
	assert.Equal(t, []string{"17"}, pub.subtopics)
	assert.Equal(t, "mqtt", m.Name())
}
