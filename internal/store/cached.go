package store

import (
	"context"
	"slices"
	"sync"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// Cached is a Remote store that fetches its whole source once per enable
// cycle and answers reads from the in-memory snapshot: filter, then sort,
// then paginate. Reads never reorder or truncate the snapshot.
type Cached struct {
	*Remote

	snapshot []*record.Record
	loaded   bool
	bypass   bool
	fields   []string
	cmu      sync.Mutex
	loadMu   sync.Mutex
}

// NewCached creates a disabled cached store.
func NewCached(reg *Registry, id string, opts Options) *Cached {
	c := &Cached{Remote: newRemote(reg, id, opts)}
	c.Bind(c, c)
	return c
}

// OnRead answers from the snapshot, loading it first if needed. With the
// cache defeated it fetches like a plain Remote store.
func (c *Cached) OnRead(ctx context.Context, q query.Query) (any, error) {
	c.cmu.Lock()
	bypass := c.bypass
	c.cmu.Unlock()
	if bypass {
		return c.Remote.OnRead(ctx, q)
	}

	if err := c.load(ctx); err != nil {
		return nil, err
	}

	c.cmu.Lock()
	defer c.cmu.Unlock()
	return query.Apply(c.snapshot, q, c.fields), nil
}

// commitRead keeps the remote total only when reads bypass the snapshot.
func (c *Cached) commitRead(raw any) {
	c.cmu.Lock()
	bypass := c.bypass
	c.cmu.Unlock()
	if bypass {
		c.Remote.commitRead(raw)
	}
}

// load fetches the full source unless the snapshot already holds data.
func (c *Cached) load(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.cmu.Lock()
	done := c.loaded || len(c.snapshot) > 0
	c.cmu.Unlock()
	if done {
		return nil
	}

	raw, err := c.Remote.OnRead(ctx, query.Query{})
	if err != nil {
		return err
	}
	recs, err := record.Normalize(raw)
	if err != nil {
		return err
	}
	c.Remote.commitRead(raw)

	c.cmu.Lock()
	c.snapshot = append(recs, c.snapshot...)
	c.loaded = true
	c.cmu.Unlock()
	c.config.Log(3, "store %s cached %d records", c.id, len(recs))
	return nil
}

// Append normalizes data and adds it to the end of the snapshot.
func (c *Cached) Append(data any) ([]*record.Record, error) {
	recs, err := record.Normalize(data)
	if err != nil {
		return nil, err
	}
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.snapshot = append(c.snapshot, recs...)
	return recs, nil
}

// Remove drops the given records (by identity) from the snapshot.
func (c *Cached) Remove(recs ...*record.Record) {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.snapshot = slices.DeleteFunc(c.snapshot, func(r *record.Record) bool {
		return slices.Contains(recs, r)
	})
}

// Clear unselects and empties the snapshot; the next read fetches again.
func (c *Cached) Clear() {
	c.cmu.Lock()
	record.ClearSelected(c.snapshot)
	c.snapshot = nil
	c.loaded = false
	c.cmu.Unlock()
	c.emit(Event{Name: EventSelect})
}

// Snapshot returns a copy of the cached records in their original order.
func (c *Cached) Snapshot() []*record.Record {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return slices.Clone(c.snapshot)
}

// SetFields restricts bare-value filters to the named fields (nil = all fields).
func (c *Cached) SetFields(names []string) {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	c.fields = slices.Clone(names)
}

// Cached reports whether reads are answered from the snapshot.
func (c *Cached) Cached() bool {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return !c.bypass
}

// SetCached turns the cache on or off. Either way the snapshot is cleared.
func (c *Cached) SetCached(on bool) {
	c.cmu.Lock()
	c.bypass = !on
	c.cmu.Unlock()
	c.Clear()
}

// Search replaces the filter with a single bare-value filter and re-reads.
// A nil or empty value clears the filter.
func (c *Cached) Search(ctx context.Context, owner, value any) ([]*record.Record, error) {
	if value == nil || value == "" {
		c.SetFilter(nil)
	} else {
		c.SetFilter(query.Value(value))
	}
	return c.self.Read(ctx, owner)
}

// Count returns how many snapshot records match the filter. Before the
// first load it falls back to the remote total.
func (c *Cached) Count() (int, bool) {
	filter := c.Filter()
	c.cmu.Lock()
	defer c.cmu.Unlock()
	if c.bypass || (!c.loaded && len(c.snapshot) == 0) {
		return c.Remote.Count()
	}
	return len(query.Match(c.snapshot, filter, c.fields)), true
}

// Disable unregisters the store and discards the snapshot.
func (c *Cached) Disable() error {
	if err := c.Remote.Disable(); err != nil {
		return err
	}
	c.cmu.Lock()
	c.snapshot = nil
	c.loaded = false
	c.cmu.Unlock()
	return nil
}
