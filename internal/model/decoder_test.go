package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = "1808   1759  1.028  27.05  30.21 1 1 DRY DRY 3 3 0.80 0.80 4 GOOD  78.18  27.19  45.29 -102."

func fetchedAt() time.Time {
	return time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
}

func TestDecodeMapsTokensPositionally(t *testing.T) {
	schema := DefaultSchema()
	rec, err := Decode(schema, samplePayload, Derived{SensorID: "17", FetchedAt: fetchedAt()})
	require.NoError(t, err)

	// measured columns + sensor_id + timestamp
	assert.Equal(t, schema.Width()+2, rec.Len())

	tokens := strings.Fields(samplePayload)
	for i, col := range schema.Columns[:len(schema.Columns)-1] {
		got, ok := rec.Get(col.Name)
		require.True(t, ok, col.Name)
		switch v := got.(type) {
		case string:
			assert.Equal(t, tokens[i], v, col.Name)
		case int64, float64:
			want, err := parseToken(col, tokens[i])
			require.NoError(t, err)
			assert.Equal(t, want, v, col.Name)
		default:
			t.Fatalf("unexpected type %T for %s", got, col.Name)
		}
	}

	status, _ := rec.Get("status_code")
	assert.Equal(t, int64(-102), status)
	assert.Equal(t, "17", rec.SensorID())
	ts, _ := rec.Get(FieldTimestamp)
	assert.Equal(t, "2024-03-01T18:00:00.000000+00:00", ts)
}

func TestDecodeAppendsGeoWhenAvailable(t *testing.T) {
	lat, lon := 30.27, -97.74
	rec, err := Decode(DefaultSchema(), samplePayload, Derived{
		SensorID:     "17",
		FetchedAt:    fetchedAt(),
		Latitude:     &lat,
		Longitude:    &lon,
		LocationName: "Lamar / Riverside",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchema().Width()+5, rec.Len())

	fields := rec.Fields()
	names := make([]string, 0, 5)
	for _, f := range fields[len(fields)-5:] {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{FieldSensorID, FieldTimestamp, FieldLat, FieldLon, FieldLocationName}, names)
}

func TestDecodeEmptyBodyIsNoData(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\t "} {
		_, err := Decode(DefaultSchema(), body, Derived{SensorID: "1", FetchedAt: fetchedAt()})
		assert.ErrorIs(t, err, ErrNoData)
	}
}

func TestDecodeTokenCountMismatchIsMalformed(t *testing.T) {
	short := "1808 1759 1.028"
	_, err := Decode(DefaultSchema(), short, Derived{SensorID: "1", FetchedAt: fetchedAt()})
	assert.ErrorIs(t, err, ErrMalformed)

	long := samplePayload + " 99"
	_, err = Decode(DefaultSchema(), long, Derived{SensorID: "1", FetchedAt: fetchedAt()})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeTrailingArtifactDependsOnSchema(t *testing.T) {
	v1, err := LookupSchema("road-v1")
	require.NoError(t, err)
	_, err = Decode(v1, samplePayload, Derived{SensorID: "1", FetchedAt: fetchedAt()})
	assert.True(t, errors.Is(err, ErrMalformed), "road-v1 keeps the '.' so status_code is not an int")

	clean := strings.TrimSuffix(samplePayload, ".")
	rec, err := Decode(v1, clean, Derived{SensorID: "1", FetchedAt: fetchedAt()})
	require.NoError(t, err)
	status, _ := rec.Get("status_code")
	assert.Equal(t, int64(-102), status)
}

func TestDecodeIntegerColumns(t *testing.T) {
	col := Column{Name: "voltage_y", Kind: KindInt}
	for tok, want := range map[string]int64{"1808": 1808, "4.0": 4, "-3.00": -3} {
		v, err := parseToken(col, tok)
		require.NoError(t, err, tok)
		assert.Equal(t, want, v, tok)
	}
	for _, tok := range []string{"-102.", "4.5", "1e19", "99999999999999999999", "9223372036854775808.0", "NaN"} {
		_, err := parseToken(col, tok)
		assert.ErrorIs(t, err, ErrMalformed, tok)
	}
}

func TestDecodeRejectsOutOfRangeInteger(t *testing.T) {
	for _, big := range []string{"1e19", "99999999999999999999"} {
		bad := strings.Replace(samplePayload, "1808", big, 1)
		_, err := Decode(DefaultSchema(), bad, Derived{SensorID: "1", FetchedAt: fetchedAt()})
		assert.ErrorIs(t, err, ErrMalformed, big)
	}
}

func TestDecodeRejectsNonNumericMeasurement(t *testing.T) {
	bad := strings.Replace(samplePayload, "1.028", "n/a", 1)
	_, err := Decode(DefaultSchema(), bad, Derived{SensorID: "1", FetchedAt: fetchedAt()})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestRecordJSONKeepsSchemaOrder(t *testing.T) {
	rec, err := Decode(DefaultSchema(), samplePayload, Derived{SensorID: "17", FetchedAt: fetchedAt()})
	require.NoError(t, err)

	b, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), `{"voltage_y":1808,"voltage_x":1759,"voltage_ratio":1.028`), string(b))
	assert.Contains(t, string(b), `"sensor_id":"17","timestamp":"2024-03-01T18:00:00.000000+00:00"}`)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Len(t, m, rec.Len())
}

func TestLookupSchemaUnknown(t *testing.T) {
	_, err := LookupSchema("road-v9")
	assert.Error(t, err)
	assert.Equal(t, []string{"road-v1", "road-v2"}, SchemaNames())
}
