package model

import (
	"fmt"
	"sort"
)

// Kind is the wire type of a column value.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "text"
	}
}

// Column is one positional token of the sensor payload.
type Column struct {
	Name string
	Kind Kind
}

// Schema is the ordered token layout of a sensor firmware generation.
type Schema struct {
	Name    string
	Columns []Column
	// StripTrailingPunct removes one trailing '.', ',' or ';' from the last raw token.
	StripTrailingPunct bool
}

// Derived field names appended after the measured columns.
const (
	FieldSensorID     = "sensor_id"
	FieldTimestamp    = "timestamp"
	FieldLat          = "lat"
	FieldLon          = "lon"
	FieldLocationName = "location_name"
)

// DefaultSchemaName is the canonical layout.
const DefaultSchemaName = "road-v2"

var roadColumns = []Column{
	{"voltage_y", KindInt},
	{"voltage_x", KindInt},
	{"voltage_ratio", KindFloat},
	{"air_temp_secondary", KindFloat},
	{"temp_surface", KindFloat},
	{"condition_code_displayed", KindInt},
	{"condition_code_measured", KindInt},
	{"condition_text_displayed", KindText},
	{"condition_text_measured", KindText},
	{"friction_code_displayed", KindInt},
	{"friction_code_measured", KindInt},
	{"friction_value_displayed", KindFloat},
	{"friction_value_measured", KindFloat},
	{"dirty_lens_score", KindInt},
	{"grip_text", KindText},
	{"relative_humidity", KindFloat},
	{"air_temp_primary", KindFloat},
	{"air_temp_tertiary", KindFloat},
	{"status_code", KindInt},
}

var schemas = map[string]Schema{
	"road-v1": {Name: "road-v1", Columns: roadColumns},
	"road-v2": {Name: "road-v2", Columns: roadColumns, StripTrailingPunct: true},
}

// LookupSchema returns a registered schema by name.
func LookupSchema(name string) (Schema, error) {
	s, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown schema %q (known: %v)", name, SchemaNames())
	}
	return s, nil
}

// DefaultSchema returns the canonical schema.
func DefaultSchema() Schema {
	return schemas[DefaultSchemaName]
}

func SchemaNames() []string {
	out := make([]string, 0, len(schemas))
	for k := range schemas {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Width is the expected number of raw tokens.
func (s Schema) Width() int { return len(s.Columns) }
