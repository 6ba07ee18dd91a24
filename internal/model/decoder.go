package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/road-conditions/internal/model/messages"
)

// TimestampLayout is the ISO-8601 form written into the timestamp field (always UTC).
const TimestampLayout = "2006-01-02T15:04:05.000000-07:00"

var (
	// ErrNoData means the sensor answered with an empty body. Not a failure.
	ErrNoData = errors.New("no data")
	// ErrMalformed means the payload does not match the schema and is discarded.
	ErrMalformed = errors.New("malformed payload")
)

// Derived carries the fields appended to every record after the measured columns.
type Derived struct {
	SensorID     string
	FetchedAt    time.Time
	Latitude     *float64
	Longitude    *float64
	LocationName string
}

// DerivedFor builds the derived fields of a sensor for one fetch.
func DerivedFor(s Sensor, fetchedAt time.Time) Derived {
	return Derived{
		SensorID:     s.ID,
		FetchedAt:    fetchedAt,
		Latitude:     s.Latitude,
		Longitude:    s.Longitude,
		LocationName: s.LocationName,
	}
}

// Decode splits body on whitespace and zips the tokens against the schema.
// A token count different from the schema width is rejected, never padded.
func Decode(schema Schema, body string, d Derived) (SensorRecord, error) {
	tokens := strings.Fields(body)
	if len(tokens) == 0 {
		return SensorRecord{}, ErrNoData
	}
	if len(tokens) != schema.Width() {
		return SensorRecord{}, fmt.Errorf("%w: got %d tokens, schema %s expects %d",
			ErrMalformed, len(tokens), schema.Name, schema.Width())
	}
	if schema.StripTrailingPunct {
		last := len(tokens) - 1
		tokens[last] = strings.TrimRight(tokens[last], ".,;")
		if tokens[last] == "" {
			return SensorRecord{}, fmt.Errorf("%w: empty final token", ErrMalformed)
		}
	}

	fields := make([]messages.Field, 0, schema.Width()+5)
	for i, col := range schema.Columns {
		v, err := parseToken(col, tokens[i])
		if err != nil {
			return SensorRecord{}, err
		}
		fields = append(fields, messages.Field{Name: col.Name, Value: v})
	}

	fields = append(fields,
		messages.Field{Name: FieldSensorID, Value: d.SensorID},
		messages.Field{Name: FieldTimestamp, Value: d.FetchedAt.UTC().Format(TimestampLayout)},
	)
	if d.Latitude != nil {
		fields = append(fields, messages.Field{Name: FieldLat, Value: *d.Latitude})
	}
	if d.Longitude != nil {
		fields = append(fields, messages.Field{Name: FieldLon, Value: *d.Longitude})
	}
	if d.LocationName != "" {
		fields = append(fields, messages.Field{Name: FieldLocationName, Value: d.LocationName})
	}
	return messages.NewSensorRecord(fields), nil
}

func parseToken(col Column, tok string) (any, error) {
	switch col.Kind {
	case KindInt:
		n, err := parseInt(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s: %q is not an integer", ErrMalformed, col.Name, tok)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: column %s: %q is not a number", ErrMalformed, col.Name, tok)
		}
		return f, nil
	default:
		return tok, nil
	}
}

// parseInt accepts plain integers and the "4.0" form some firmware prints.
// A bare trailing point ("-102.") and exponents are not integers.
func parseInt(tok string) (int64, error) {
	whole, frac, found := strings.Cut(tok, ".")
	if found && (frac == "" || strings.Trim(frac, "0") != "") {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(whole, 10, 64)
}
