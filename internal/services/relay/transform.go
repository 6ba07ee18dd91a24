package relay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
	"github.com/LeonardoBeccarini/road-conditions/internal/model/messages"
)

const (
	// PortalLayout is the portal's floating timestamp form: local time, no zone.
	PortalLayout = "2006-01-02T15:04:05"
	// FieldLocation holds the composed geo point.
	FieldLocation = "location"
)

var sinkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
}

// parseSinkTime reads timestamps as PostgREST renders them. Zoneless values are UTC.
func parseSinkTime(s string) (time.Time, error) {
	for _, layout := range sinkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// Localize rewrites row[key] in loc without a zone suffix.
func Localize(row model.RelayRow, key string, loc *time.Location) error {
	raw, ok := row[key].(string)
	if !ok {
		return fmt.Errorf("%s is %T, want string", key, row[key])
	}
	t, err := parseSinkTime(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	row[key] = t.In(loc).Format(PortalLayout)
	return nil
}

// ComposeLocation replaces lat and lon with a GeoJSON point when both are
// usable numbers. The lat and lon keys are removed either way.
func ComposeLocation(row model.RelayRow) {
	lat, latOK := number(row[model.FieldLat])
	lon, lonOK := number(row[model.FieldLon])
	delete(row, model.FieldLat)
	delete(row, model.FieldLon)
	if latOK && lonOK {
		row[FieldLocation] = messages.NewGeoPoint(lon, lat)
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Transform applies every portal rewrite in place. The first row that cannot
// be rewritten fails the batch.
func Transform(rows []model.RelayRow, loc *time.Location) error {
	for i, row := range rows {
		if err := Localize(row, model.FieldTimestamp, loc); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		ComposeLocation(row)
	}
	return nil
}
