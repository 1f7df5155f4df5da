package events

import "encoding/json"

// Metadata is the free-form key/value payload attached to a raw event.
// Its shape is caller-controlled and unversioned, so every read goes
// through a typed accessor that treats mismatches as absence. Bad metadata
// must never abort an aggregation run.
type Metadata map[string]any

// GetString returns the string value for key, or ok=false when the key is
// missing or holds a non-string value.
func (m Metadata) GetString(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// GetNumber returns the numeric value for key as a float64. JSON decoding
// yields float64 for all numbers, but events assembled in-process may carry
// ints, and some drivers surface json.Number.
func (m Metadata) GetNumber(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GetMap returns the nested object for key, or ok=false when the key is
// missing or not an object.
func (m Metadata) GetMap(key string) (Metadata, bool) {
	if m == nil {
		return nil, false
	}
	switch v := m[key].(type) {
	case Metadata:
		return v, true
	case map[string]any:
		return Metadata(v), true
	default:
		return nil, false
	}
}

// DecodeMetadata parses a JSON metadata payload as stored in the raw event
// store. Malformed payloads decode to nil rather than an error; the
// aggregator treats nil metadata as empty.
func DecodeMetadata(raw string) Metadata {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return Metadata(m)
}
