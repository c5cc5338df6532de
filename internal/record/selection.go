package record

// The selection marker lives on the record itself, so it follows the record
// through cached reads, is invisible to JSON export and needs no side table.

// AddSelected marks records as selected.
func AddSelected(recs ...*Record) {
	for _, r := range recs {
		if r != nil {
			r.selected.Store(true)
		}
	}
}

// RemoveSelected clears the marker on the given records.
func RemoveSelected(recs ...*Record) {
	for _, r := range recs {
		if r != nil {
			r.selected.Store(false)
		}
	}
}

// ClearSelected clears the marker on every record of a collection.
func ClearSelected(recs []*Record) {
	RemoveSelected(recs...)
}

// IsSelected reports whether r carries the marker.
func IsSelected(r *Record) bool {
	return r != nil && r.selected.Load()
}

// GetSelected returns the selected records of a collection, in order.
func GetSelected(recs []*Record) []*Record {
	var out []*Record
	for _, r := range recs {
		if IsSelected(r) {
			out = append(out, r)
		}
	}
	return out
}
