// Package path parses dotted field paths such as "address.city" or
// "tags.1.name" and resolves them against decoded JSON values.
package path

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// SegmentType identifies the type of path segment.
type SegmentType int

const (
	SegmentProperty SegmentType = iota // Object field: name
	SegmentIndex                       // Array index: 1, 2 (1-based)
)

// Segment represents a single path segment.
type Segment struct {
	Type  SegmentType
	Value string // property name, or the index as written
	Index int    // for SegmentIndex (1-based)
}

// Path represents a parsed field path.
type Path struct {
	Segments []Segment
	Raw      string // original path string
}

var indexPattern = regexp.MustCompile(`^[1-9][0-9]*$`)

// Parse splits a path string into segments.
// Examples:
//   - "name" -> property access
//   - "address.city" -> property.property
//   - "tags.2" -> property.index (the second element)
func Parse(pathStr string) (*Path, error) {
	p := &Path{Raw: pathStr}
	if pathStr == "" {
		return p, nil
	}

	for _, part := range strings.Split(pathStr, ".") {
		if part == "" {
			return nil, fmt.Errorf("field path %q has an empty segment", pathStr)
		}
		seg := Segment{Type: SegmentProperty, Value: part}
		if indexPattern.MatchString(part) {
			seg.Type = SegmentIndex
			seg.Index, _ = strconv.Atoi(part)
		}
		p.Segments = append(p.Segments, seg)
	}
	return p, nil
}

// Resolve walks v along the path. Index segments also name object fields,
// so {"1": x} resolves "1" to x.
func (p *Path) Resolve(v any) (any, bool) {
	for _, seg := range p.Segments {
		switch cur := v.(type) {
		case map[string]any:
			next, ok := cur[seg.Value]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			if seg.Type != SegmentIndex || seg.Index > len(cur) {
				return nil, false
			}
			v = cur[seg.Index-1]
		default:
			return nil, false
		}
	}
	return v, true
}

// Resolve parses pathStr and resolves it against v. A malformed path
// resolves to nothing.
func Resolve(v any, pathStr string) (any, bool) {
	p, err := Parse(pathStr)
	if err != nil {
		return nil, false
	}
	return p.Resolve(v)
}

// String reconstructs the path string.
func (p *Path) String() string {
	parts := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		if seg.Type == SegmentIndex {
			parts[i] = strconv.Itoa(seg.Index)
		} else {
			parts[i] = seg.Value
		}
	}
	return strings.Join(parts, ".")
}

// IsEmpty returns true if the path has no segments.
func (p *Path) IsEmpty() bool {
	return len(p.Segments) == 0
}

// Len returns the number of segments.
func (p *Path) Len() int {
	return len(p.Segments)
}
