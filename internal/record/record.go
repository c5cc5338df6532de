// Package record holds the unit of data exchanged by stores, its normalization
// from fetch results and the hidden selection marker.
package record

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/zot/ui-data/internal/path"
)

// Record wraps a single fetched item (object or primitive).
// Identity is the pointer: two records with equal values are still distinct.
type Record struct {
	value    any
	selected atomic.Bool
}

// New wraps v in a record.
func New(v any) *Record {
	return &Record{value: v}
}

// Value returns the wrapped payload.
func (r *Record) Value() any {
	return r.value
}

// Field returns the named field of an object record. A name that is not a
// field but contains dots is a field path: "address.city", "tags.1".
func (r *Record) Field(name string) (any, bool) {
	m, ok := r.value.(map[string]any)
	if !ok {
		return nil, false
	}
	if v, ok := m[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}
	return path.Resolve(m, name)
}

// Fields returns the sorted field names of an object record, or nil for primitives.
func (r *Record) Fields() []string {
	m, ok := r.value.(map[string]any)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// IsObject reports whether the record wraps a JSON object.
func (r *Record) IsObject() bool {
	_, ok := r.value.(map[string]any)
	return ok
}

// MarshalJSON emits only the payload; the selection marker is never serialized.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.value)
}

// UnmarshalJSON replaces the payload.
func (r *Record) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.value = v
	return nil
}

func (r *Record) String() string {
	return fmt.Sprintf("%v", r.value)
}

// Values unwraps a record slice.
func Values(recs []*Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r.value
	}
	return out
}

// Wrap wraps each value in a new record.
func Wrap(values ...any) []*Record {
	out := make([]*Record, len(values))
	for i, v := range values {
		out[i] = New(v)
	}
	return out
}
