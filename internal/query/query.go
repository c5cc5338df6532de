// Package query describes the skip/limit/sort/filter window applied to a
// record collection, both in memory and on the wire.
package query

import (
	"strings"

	"github.com/zot/ui-data/internal/record"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Column is one sort key.
type Column struct {
	Column    string    `json:"col"`
	Direction Direction `json:"ord,omitempty"`
}

// Sort is an ordered list of sort keys; earlier keys take precedence.
type Sort []Column

// Operator is a filter comparison.
type Operator string

const (
	Eq Operator = "eq"
	Gt Operator = "gt"
	Lt Operator = "lt"
	Ge Operator = "ge"
	Le Operator = "le"
)

// Condition is one filter term. An empty Name means "match any field".
type Condition struct {
	Name     string   `json:"name,omitempty"`
	Value    any      `json:"value"`
	Operator Operator `json:"op,omitempty"`
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Value builds a bare value-only filter.
func Value(v any) Filter {
	return Filter{{Value: v}}
}

// Query is the window a read asks for. Limit 0 means no limit.
type Query struct {
	Skip   int
	Limit  int
	Sort   Sort
	Filter Filter
}

// Apply filters, sorts and paginates recs, in that order, without touching recs.
// fields restricts which fields a bare-value condition looks at (nil = all).
func Apply(recs []*record.Record, q Query, fields []string) []*record.Record {
	out := Match(recs, q.Filter, fields)
	SortRecords(out, q.Sort)
	return Page(out, q.Skip, q.Limit)
}

// Match returns a new slice with the records satisfying every condition of f.
func Match(recs []*record.Record, f Filter, fields []string) []*record.Record {
	out := make([]*record.Record, 0, len(recs))
	for _, r := range recs {
		if f.Matches(r, fields) {
			out = append(out, r)
		}
	}
	return out
}

// Page slices [skip, skip+limit). limit 0 means no limit.
func Page(recs []*record.Record, skip, limit int) []*record.Record {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(recs) {
		return []*record.Record{}
	}
	end := len(recs)
	if limit > 0 && limit < end-skip {
		end = skip + limit
	}
	return recs[skip:end]
}

// Matches reports whether r satisfies every condition.
func (f Filter) Matches(r *record.Record, fields []string) bool {
	for _, c := range f {
		if !c.Matches(r, fields) {
			return false
		}
	}
	return true
}

// Matches reports whether r satisfies c.
func (c Condition) Matches(r *record.Record, fields []string) bool {
	if c.Name != "" {
		v, ok := r.Field(c.Name)
		if !ok {
			return false
		}
		return c.compare(v)
	}
	if !r.IsObject() {
		return c.matchAny(r.Value())
	}
	if fields == nil {
		fields = r.Fields()
	}
	for _, name := range fields {
		if v, ok := r.Field(name); ok && c.matchAny(v) {
			return true
		}
	}
	return false
}

func (c Condition) compare(v any) bool {
	n := record.Compare(v, c.Value)
	switch c.Operator {
	case Gt:
		return n > 0
	case Lt:
		return n < 0
	case Ge:
		return n >= 0
	case Le:
		return n <= 0
	}
	return n == 0
}

// matchAny is the bare-value test: ordered operators compare, equality also
// accepts a case-insensitive substring match on strings.
func (c Condition) matchAny(v any) bool {
	if c.Operator != "" && c.Operator != Eq {
		return c.compare(v)
	}
	if record.Equal(v, c.Value) {
		return true
	}
	s, ok := v.(string)
	want, ok2 := c.Value.(string)
	if !ok || !ok2 {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(want))
}
