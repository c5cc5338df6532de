package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/event"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

// Base implements the parts of Store shared by every variant: identity,
// registration, the query window, the read/write envelope, processors,
// notifications and selection. Concrete stores embed it and Bind themselves.
type Base struct {
	id        string
	registry  *Registry
	config    *config.Config
	self      Store
	ops       Operations
	events    *event.Emitter[Event]
	q         query.Query
	postRead  []Processor
	postWrite []Processor
	preWrite  []Preprocessor
	readSeq   atomic.Uint64
	mu        sync.RWMutex
}

// NewBase creates a store with no operations bound: reads and writes fail
// with ErrNotImplemented until Bind supplies them.
func NewBase(reg *Registry, id string, cfg *config.Config) *Base {
	b := &Base{
		id:       id,
		registry: reg,
		config:   cfg,
		events:   event.NewEmitter[Event](),
	}
	b.self = b
	return b
}

// Bind sets the outer store (the instance that gets registered) and its operations.
func (b *Base) Bind(self Store, ops Operations) {
	b.self = self
	b.ops = ops
}

// ID returns the registry key.
func (b *Base) ID() string {
	return b.id
}

// Registry returns the registry the store enables itself in.
func (b *Base) Registry() *Registry {
	return b.registry
}

// Enabled reports whether this instance currently owns its id in the registry.
func (b *Base) Enabled() bool {
	if b.registry == nil {
		return false
	}
	s, ok := b.registry.Find(b.id)
	return ok && s == b.self
}

// Enable registers the store.
func (b *Base) Enable() error {
	if b.registry == nil {
		return fmt.Errorf("store %q: no registry", b.id)
	}
	if err := b.registry.Register(b.self); err != nil {
		return err
	}
	b.config.Log(1, "store %s enabled", b.id)
	return nil
}

// Disable unregisters the store if it owns its id.
func (b *Base) Disable() error {
	if b.registry != nil && b.registry.Remove(b.self) {
		b.config.Log(1, "store %s disabled", b.id)
	}
	return nil
}

// Skip returns the number of records to skip.
func (b *Base) Skip() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.q.Skip
}

// SetSkip sets the number of records to skip; negative values become 0.
func (b *Base) SetSkip(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Skip = max(n, 0)
}

// Limit returns the page size (0 = unlimited).
func (b *Base) Limit() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.q.Limit
}

// SetLimit sets the page size; negative values become 0.
func (b *Base) SetLimit(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Limit = max(n, 0)
}

// Sort returns a copy of the sort keys.
func (b *Base) Sort() query.Sort {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.q.Sort)
}

// SetSort replaces the sort keys.
func (b *Base) SetSort(s query.Sort) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Sort = slices.Clone(s)
}

// Filter returns a copy of the filter.
func (b *Base) Filter() query.Filter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.q.Filter)
}

// SetFilter replaces the filter.
func (b *Base) SetFilter(f query.Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.q.Filter = slices.Clone(f)
}

// Query returns a copy of the current window.
func (b *Base) Query() query.Query {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return query.Query{
		Skip:   b.q.Skip,
		Limit:  b.q.Limit,
		Sort:   slices.Clone(b.q.Sort),
		Filter: slices.Clone(b.q.Filter),
	}
}

// AddReadProcessor appends a processor run on every successful read.
func (b *Base) AddReadProcessor(p Processor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postRead = append(b.postRead, p)
}

// AddWriteProcessor appends a processor run on every write response.
func (b *Base) AddWriteProcessor(p Processor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.postWrite = append(b.postWrite, p)
}

// AddWritePreprocessor appends a transform applied to outgoing write data.
func (b *Base) AddWritePreprocessor(p Preprocessor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.preWrite = append(b.preWrite, p)
}

// On subscribes to read, write, error or select notifications.
func (b *Base) On(name string, fn func(Event)) func() {
	return b.events.On(name, fn)
}

func (b *Base) emit(e Event) {
	e.Store = b.id
	b.events.Emit(e.Name, e)
}

func (b *Base) fail(typ string, owner, data any, err error) error {
	b.config.Log(2, "store %s %s failed: %v", b.id, typ, err)
	b.emit(Event{Name: EventError, Type: typ, Owner: owner, Data: data, Err: err})
	return err
}

// Read fetches the current window, runs the read processors and emits a
// read event. Failures are emitted as error events and returned.
func (b *Base) Read(ctx context.Context, owner any) ([]*record.Record, error) {
	return b.read(ctx, owner, b.Query(), true, nil)
}

// read is the envelope behind Read. A sequenced read is dropped with
// ErrStale when another sequenced read started after it. apply runs on the
// processed records before the event is emitted.
func (b *Base) read(ctx context.Context, owner any, q query.Query, sequenced bool, apply func([]*record.Record) error) ([]*record.Record, error) {
	if !b.Enabled() {
		return nil, b.fail(EventRead, owner, nil, fmt.Errorf("store %q: %w", b.id, ErrNotRegistered))
	}
	if b.ops == nil {
		return nil, b.fail(EventRead, owner, nil, fmt.Errorf("store %q read: %w", b.id, ErrNotImplemented))
	}

	var seq uint64
	if sequenced {
		seq = b.readSeq.Add(1)
	}
	b.config.Log(3, "store %s read skip=%d limit=%d", b.id, q.Skip, q.Limit)

	raw, err := b.ops.OnRead(ctx, q)
	if err != nil {
		return nil, b.fail(EventRead, owner, nil, err)
	}
	if sequenced && b.readSeq.Load() != seq {
		b.config.Log(3, "store %s dropped stale read %d", b.id, seq)
		return nil, ErrStale
	}
	if c, ok := b.ops.(readCommitter); ok && sequenced {
		c.commitRead(raw)
	}

	recs, err := record.Normalize(raw)
	if err != nil {
		return nil, b.fail(EventRead, owner, nil, err)
	}
	b.mu.RLock()
	procs := slices.Clone(b.postRead)
	b.mu.RUnlock()
	for _, p := range procs {
		if recs, err = p(ctx, owner, recs); err != nil {
			return nil, b.fail(EventRead, owner, nil, err)
		}
	}
	if apply != nil {
		if err := apply(recs); err != nil {
			return nil, b.fail(EventRead, owner, nil, err)
		}
	}

	b.config.Log(4, "store %s read %d records", b.id, len(recs))
	b.emit(Event{Name: EventRead, Owner: owner, Records: recs})
	return recs, nil
}

// Write persists data, runs the write processors on the response and emits
// a write event. Failures are emitted as error events and returned.
func (b *Base) Write(ctx context.Context, owner any, data any) ([]*record.Record, error) {
	if !b.Enabled() {
		return nil, b.fail(EventWrite, owner, data, fmt.Errorf("store %q: %w", b.id, ErrNotRegistered))
	}
	if b.ops == nil {
		return nil, b.fail(EventWrite, owner, data, fmt.Errorf("store %q write: %w", b.id, ErrNotImplemented))
	}

	b.mu.RLock()
	pre := slices.Clone(b.preWrite)
	post := slices.Clone(b.postWrite)
	b.mu.RUnlock()

	var err error
	for _, p := range pre {
		if data, err = p(ctx, owner, data); err != nil {
			return nil, b.fail(EventWrite, owner, data, err)
		}
	}

	b.config.Log(3, "store %s write", b.id)
	raw, err := b.ops.OnWrite(ctx, b.Query(), data)
	if err != nil {
		return nil, b.fail(EventWrite, owner, data, err)
	}
	recs, err := record.Normalize(raw)
	if err != nil {
		return nil, b.fail(EventWrite, owner, data, err)
	}
	for _, p := range post {
		if recs, err = p(ctx, owner, recs); err != nil {
			return nil, b.fail(EventWrite, owner, data, err)
		}
	}

	b.emit(Event{Name: EventWrite, Owner: owner, Records: recs, Data: data})
	return recs, nil
}

// AddSelected marks records as selected and emits select.
func (b *Base) AddSelected(recs ...*record.Record) {
	record.AddSelected(recs...)
	b.emit(Event{Name: EventSelect})
}

// RemoveSelected unmarks records and emits select.
func (b *Base) RemoveSelected(recs ...*record.Record) {
	record.RemoveSelected(recs...)
	b.emit(Event{Name: EventSelect})
}

// ClearSelected unmarks every record of recs and emits select.
func (b *Base) ClearSelected(recs []*record.Record) {
	record.ClearSelected(recs)
	b.emit(Event{Name: EventSelect})
}

// IsSelected reports whether r is marked.
func (b *Base) IsSelected(r *record.Record) bool {
	return record.IsSelected(r)
}

// GetSelected returns the marked records of recs.
func (b *Base) GetSelected(recs []*record.Record) []*record.Record {
	return record.GetSelected(recs)
}
