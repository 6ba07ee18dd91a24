package entities

import (
	"fmt"
	"strings"
)

// Sensor is one road-conditions station as listed in the asset inventory.
// It is read once at startup and never mutated afterwards.
type Sensor struct {
	ID           string   `json:"sensor_id"`
	IP           string   `json:"ip"`
	Latitude     *float64 `json:"lat,omitempty"`
	Longitude    *float64 `json:"lon,omitempty"`
	LocationName string   `json:"location_name,omitempty"`
}

// Valid reports whether the sensor can be polled: both IP and ID must be set.
func (s Sensor) Valid() bool {
	return strings.TrimSpace(s.IP) != "" && strings.TrimSpace(s.ID) != ""
}

// HasGeo reports whether both coordinates are known.
func (s Sensor) HasGeo() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// DataURL is the fixed plain-HTTP endpoint exposed by the sensor firmware.
func (s Sensor) DataURL() string {
	return "http://" + strings.TrimSpace(s.IP) + "/data.zhtml"
}

func (s Sensor) String() string {
	return fmt.Sprintf("sensor %s@%s", s.ID, s.IP)
}
