package record

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestNormalizeShapes verifies bare arrays, data envelopes and single objects
func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"bare array", json.RawMessage(`[1,2,3]`), []any{1.0, 2.0, 3.0}},
		{"envelope", json.RawMessage(`{"data":[{"a":1}],"total":9}`), []any{map[string]any{"a": 1.0}}},
		{"single object", json.RawMessage(`{"a":1}`), []any{map[string]any{"a": 1.0}}},
		{"primitive", "x", []any{"x"}},
		{"go slice", []any{"a", "b"}, []any{"a", "b"}},
		{"nil", nil, []any{}},
	}

	for _, tt := range tests {
		recs, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("%s: Normalize failed: %v", tt.name, err)
		}
		if diff := cmp.Diff(tt.want, Values(recs)); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

// TestNormalizeBadJSON verifies decoding errors are reported
func TestNormalizeBadJSON(t *testing.T) {
	if _, err := Normalize([]byte(`{`)); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

// TestTotal verifies the envelope total is extracted
func TestTotal(t *testing.T) {
	n, ok := Total(json.RawMessage(`{"data":[],"total":42}`))
	if !ok || n != 42 {
		t.Errorf("Expected 42, got %d (%v)", n, ok)
	}
	if _, ok := Total(json.RawMessage(`[1]`)); ok {
		t.Error("Expected no total for bare array")
	}
}

// TestCompare verifies cross-type ordering
func TestCompare(t *testing.T) {
	if Compare(1.0, 2) >= 0 {
		t.Error("Expected 1 < 2")
	}
	if Compare("b", "a") <= 0 {
		t.Error("Expected b > a")
	}
	if Compare(nil, false) >= 0 {
		t.Error("Expected nil < bool")
	}
	if !Equal("3", 3.0) {
		t.Error("Expected numeric string to equal number")
	}
	if Compare(json.Number("10"), 9) <= 0 {
		t.Error("Expected json.Number 10 > 9")
	}
}

// TestSelection verifies the hidden marker
func TestSelection(t *testing.T) {
	recs := Wrap(map[string]any{"n": 1.0}, map[string]any{"n": 2.0}, map[string]any{"n": 3.0})

	AddSelected(recs[1])
	got := GetSelected(recs)
	if len(got) != 1 || got[0] != recs[1] {
		t.Fatalf("Expected exactly the second record, got %v", got)
	}

	data, err := json.Marshal(recs[1])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"n":2}` {
		t.Errorf("Marker leaked into JSON: %s", data)
	}

	ClearSelected(recs)
	if len(GetSelected(recs)) != 0 {
		t.Error("Expected no selection after ClearSelected")
	}
}

// TestSelectionIdentity verifies equal values are still distinct records
func TestSelectionIdentity(t *testing.T) {
	a, b := New("same"), New("same")
	AddSelected(a)
	if IsSelected(b) {
		t.Error("Selecting one record must not select an equal one")
	}
}

// TestFieldPath verifies a literal dotted key wins over the path it spells
func TestFieldPath(t *testing.T) {
	r := New(map[string]any{
		"a.b": "literal",
		"a":   map[string]any{"b": "nested", "c": "deep"},
	})
	if v, _ := r.Field("a.b"); v != "literal" {
		t.Errorf("Expected the literal key, got %v", v)
	}
	if v, _ := r.Field("a.c"); v != "deep" {
		t.Errorf("Expected the nested field, got %v", v)
	}
	if _, ok := r.Field("a.z"); ok {
		t.Error("Expected a missing nested field")
	}
	if _, ok := New(3.0).Field("a.b"); ok {
		t.Error("Primitive records have no fields")
	}
}
