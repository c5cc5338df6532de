package query

import (
	"sort"

	"github.com/zot/ui-data/internal/record"
)

// SortRecords stably sorts recs in place.
func SortRecords(recs []*record.Record, s Sort) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return s.Less(recs[i], recs[j])
	})
}

// Less orders two records by the sort keys. A column name of "" sorts
// primitive records by their own value.
func (s Sort) Less(a, b *record.Record) bool {
	for _, col := range s {
		av, bv := columnValue(a, col.Column), columnValue(b, col.Column)
		n := record.Compare(av, bv)
		if n == 0 {
			continue
		}
		if col.Direction == Desc {
			return n > 0
		}
		return n < 0
	}
	return false
}

func columnValue(r *record.Record, name string) any {
	if name == "" || !r.IsObject() {
		return r.Value()
	}
	v, _ := r.Field(name)
	return v
}
