package controller

import (
	"context"

	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/store"
)

// Page returns the 1-based page holding the store's skip offset.
func (c *Controller) Page() int {
	s := c.Store()
	if s == nil {
		return 1
	}
	return s.Skip()/max(s.Limit(), 1) + 1
}

// SetPage moves the window to page p (clamped to 1) and re-reads.
func (c *Controller) SetPage(ctx context.Context, p int) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	p = max(p, 1)
	s.SetSkip(s.Limit() * (p - 1))
	return s.Read(ctx, c.host)
}

// FirstPage moves to page 1 and re-reads.
func (c *Controller) FirstPage(ctx context.Context) ([]*record.Record, error) {
	return c.SetPage(ctx, 1)
}

// NextPage moves one page forward and re-reads.
func (c *Controller) NextPage(ctx context.Context) ([]*record.Record, error) {
	return c.SetPage(ctx, c.Page()+1)
}

// PrevPage moves one page back, stopping at page 1, and re-reads.
func (c *Controller) PrevPage(ctx context.Context) ([]*record.Record, error) {
	return c.SetPage(ctx, c.Page()-1)
}

// LastPage moves to the page holding the last matching record. The store
// must know its total; ErrNoCount otherwise.
func (c *Controller) LastPage(ctx context.Context) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	counter, ok := s.(store.Counter)
	if !ok {
		return nil, ErrNoCount
	}
	n, ok := counter.Count()
	if !ok {
		return nil, ErrNoCount
	}
	limit := s.Limit()
	if limit == 0 {
		return c.SetPage(ctx, 1)
	}
	return c.SetPage(ctx, max((n+limit-1)/limit, 1))
}
