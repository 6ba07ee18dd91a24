package messages

// RelayRow is one sink row on its way to the open-data portal. Values keep the
// types produced by encoding/json (string, float64, bool, nil, nested maps).
type RelayRow map[string]any

// GeoPoint is the GeoJSON point expected by the portal location column.
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // lon, lat
}

func NewGeoPoint(lon, lat float64) GeoPoint {
	return GeoPoint{Type: "Point", Coordinates: [2]float64{lon, lat}}
}
