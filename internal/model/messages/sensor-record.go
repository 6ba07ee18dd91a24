package messages

import (
	"bytes"
	"encoding/json"
)

// Field is one named value of a decoded sensor payload.
type Field struct {
	Name  string
	Value any
}

// SensorRecord is the flat record uploaded to the sink. Field order follows the
// column schema and is preserved in the JSON encoding.
type SensorRecord struct {
	fields []Field
}

func NewSensorRecord(fields []Field) SensorRecord {
	out := make([]Field, len(fields))
	copy(out, fields)
	return SensorRecord{fields: out}
}

func (r SensorRecord) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

func (r SensorRecord) Len() int { return len(r.fields) }

func (r SensorRecord) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// SensorID returns the derived sensor_id field, or "" when absent.
func (r SensorRecord) SensorID() string {
	if v, ok := r.Get("sensor_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Map returns an unordered copy, handy for mirrors that do not care about order.
func (r SensorRecord) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		m[f.Name] = f.Value
	}
	return m
}

func (r SensorRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
