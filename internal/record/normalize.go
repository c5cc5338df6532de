package record

import (
	"encoding/json"
	"fmt"
)

// Normalize turns a fetch result into a record sequence.
//
// Accepted shapes: raw JSON bytes, a bare array, an object with a "data"
// array, a single object or primitive (wrapped into a one-element sequence),
// or an existing record slice (returned as is). nil yields an empty sequence.
func Normalize(v any) ([]*Record, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []*Record:
		return val, nil
	case *Record:
		return []*Record{val}, nil
	case json.RawMessage:
		return normalizeJSON(val)
	case []byte:
		return normalizeJSON(val)
	case []any:
		return Wrap(val...), nil
	case []map[string]any:
		out := make([]*Record, len(val))
		for i, m := range val {
			out[i] = New(m)
		}
		return out, nil
	case map[string]any:
		if data, ok := val["data"]; ok {
			if arr, ok := data.([]any); ok {
				return Wrap(arr...), nil
			}
		}
		return []*Record{New(val)}, nil
	default:
		return []*Record{New(val)}, nil
	}
}

func normalizeJSON(data []byte) ([]*Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return Normalize(v)
}

// Total extracts the "total" count of a {data, total} envelope.
func Total(v any) (int, bool) {
	var m map[string]any
	switch val := v.(type) {
	case map[string]any:
		m = val
	case json.RawMessage:
		if json.Unmarshal(val, &m) != nil {
			return 0, false
		}
	case []byte:
		if json.Unmarshal(val, &m) != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	n, ok := ToFloat(m["total"])
	if !ok {
		return 0, false
	}
	return int(n), true
}
