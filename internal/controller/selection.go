package controller

import "github.com/zot/ui-data/internal/record"

// Selection calls go straight to the store. Before HostConnected they act
// on the records alone and notify nobody.

// AddSelected marks recs selected.
func (c *Controller) AddSelected(recs ...*record.Record) {
	if s := c.Store(); s != nil {
		s.AddSelected(recs...)
		return
	}
	record.AddSelected(recs...)
}

// RemoveSelected unmarks recs.
func (c *Controller) RemoveSelected(recs ...*record.Record) {
	if s := c.Store(); s != nil {
		s.RemoveSelected(recs...)
		return
	}
	record.RemoveSelected(recs...)
}

// ClearSelected unmarks every record in recs.
func (c *Controller) ClearSelected(recs []*record.Record) {
	if s := c.Store(); s != nil {
		s.ClearSelected(recs)
		return
	}
	record.ClearSelected(recs)
}

// IsSelected reports whether r is marked selected.
func (c *Controller) IsSelected(r *record.Record) bool {
	return record.IsSelected(r)
}

// GetSelected returns the selected records of recs, in order.
func (c *Controller) GetSelected(recs []*record.Record) []*record.Record {
	return record.GetSelected(recs)
}
