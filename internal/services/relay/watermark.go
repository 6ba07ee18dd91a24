package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/road-conditions/internal/model"
)

// FilterLayout formats the lower bound sent to the sink.
const FilterLayout = "2006-01-02T15:04:05-07:00"

var watermarkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Watermark is the operator supplied lower bound of a run. The zero value
// means a full resync.
type Watermark struct {
	At  time.Time
	Set bool
}

// ParseWatermark accepts ISO-8601 dates and date-times. A value without a
// zone is read as UTC.
func ParseWatermark(s string) (Watermark, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Watermark{}, nil
	}
	for _, layout := range watermarkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Watermark{At: t, Set: true}, nil
		}
	}
	return Watermark{}, fmt.Errorf("watermark %q is not an ISO-8601 date", s)
}

// Since is the effective lower bound: the watermark minus the rollback margin.
func (w Watermark) Since(rollback time.Duration) (time.Time, bool) {
	if !w.Set {
		return time.Time{}, false
	}
	return w.At.Add(-rollback), true
}

// Filters returns the sink filter for the run, nil for a full resync.
func (w Watermark) Filters(rollback time.Duration) map[string]string {
	since, ok := w.Since(rollback)
	if !ok {
		return nil
	}
	return map[string]string{model.FieldTimestamp: "gte." + since.UTC().Format(FilterLayout)}
}

func (w Watermark) String() string {
	if !w.Set {
		return "<no filter>"
	}
	return w.At.Format(time.RFC3339)
}
