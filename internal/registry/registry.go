// Package registry maps store ids to live store instances and type names to
// store factories, and lets callers wait for a store to come or go.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/zot/ui-data/internal/event"
)

var (
	// ErrDuplicateKey is returned when a different instance already owns an id.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrCancelled is returned by Wait when its context ends first.
	ErrCancelled = errors.New("cancelled")
)

// Event names emitted by the registry. The per-id variants are Name+"-"+id.
const (
	EventRegister   = "register"
	EventUnregister = "unregister"
)

// Entry is what the registry stores: anything with an id that can enable itself.
type Entry interface {
	comparable
	ID() string
	Enable() error
}

// Factory builds a store of some registered type.
type Factory[S Entry] func(id string) (S, error)

// Registry is a directory of stores keyed by id. The zero value is not usable;
// create instances with New.
type Registry[S Entry] struct {
	stores   map[string]S
	handlers map[string]Factory[S]
	events   *event.Emitter[S]
	mu       sync.RWMutex
}

// New creates an empty registry.
func New[S Entry]() *Registry[S] {
	return &Registry[S]{
		stores:   make(map[string]S),
		handlers: make(map[string]Factory[S]),
		events:   event.NewEmitter[S](),
	}
}

// AddHandler registers a factory under a type name. The last registration wins.
func (r *Registry[S]) AddHandler(typ string, f Factory[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = f
}

// RemoveHandler forgets a factory.
func (r *Registry[S]) RemoveHandler(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, typ)
}

// Handlers returns the registered type names, sorted.
func (r *Registry[S]) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewHandler instantiates a store of a registered type. ok is false when the
// type is unknown. An empty id is replaced by a fresh ULID. When enabled is
// true the store is enabled (and so registered) before it is returned.
func (r *Registry[S]) NewHandler(typ, id string, enabled bool) (s S, ok bool, err error) {
	r.mu.RLock()
	f, found := r.handlers[typ]
	r.mu.RUnlock()
	if !found {
		return s, false, nil
	}

	if id == "" {
		id = ulid.Make().String()
	}
	s, err = f(id)
	if err != nil {
		return s, true, fmt.Errorf("creating %s store %q: %w", typ, id, err)
	}
	if enabled {
		if err := s.Enable(); err != nil {
			return s, true, err
		}
	}
	return s, true, nil
}

// Register adds s under its id. Registering the same instance again is a
// no-op; a different instance under a taken id fails with ErrDuplicateKey.
func (r *Registry[S]) Register(s S) error {
	id := s.ID()

	r.mu.Lock()
	if existing, ok := r.stores[id]; ok {
		r.mu.Unlock()
		if existing == s {
			return nil
		}
		return fmt.Errorf("store %q: %w", id, ErrDuplicateKey)
	}
	r.stores[id] = s
	r.mu.Unlock()

	r.events.Emit(EventRegister+"-"+id, s)
	r.events.Emit(EventRegister, s)
	return nil
}

// Unregister removes whatever store owns id and reports whether one did.
func (r *Registry[S]) Unregister(id string) bool {
	r.mu.Lock()
	s, ok := r.stores[id]
	if ok {
		delete(r.stores, id)
	}
	r.mu.Unlock()

	if ok {
		r.emitUnregister(s)
	}
	return ok
}

// Remove unregisters s only if s itself owns its id.
func (r *Registry[S]) Remove(s S) bool {
	id := s.ID()

	r.mu.Lock()
	existing, ok := r.stores[id]
	ok = ok && existing == s
	if ok {
		delete(r.stores, id)
	}
	r.mu.Unlock()

	if ok {
		r.emitUnregister(s)
	}
	return ok
}

func (r *Registry[S]) emitUnregister(s S) {
	r.events.Emit(EventUnregister+"-"+s.ID(), s)
	r.events.Emit(EventUnregister, s)
}

// Find returns the store registered under id.
func (r *Registry[S]) Find(id string) (S, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	return s, ok
}

// IDs returns the registered store ids, sorted.
func (r *Registry[S]) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// On subscribes to a registry event (register, unregister or their per-id forms).
func (r *Registry[S]) On(name string, fn func(S)) func() {
	return r.events.On(name, fn)
}

// Wait blocks until a store with id is registered (forRegistration) or
// unregistered (!forRegistration). If that already holds it returns at once.
// When ctx ends first Wait fails with ErrCancelled.
//
// For unregistration the returned store is the one that left, or the zero
// value if nothing was registered.
func (r *Registry[S]) Wait(ctx context.Context, id string, forRegistration bool) (S, error) {
	var zero S
	name := EventRegister + "-" + id
	if !forRegistration {
		name = EventUnregister + "-" + id
	}
	ch := make(chan S, 1)

	// check and subscribe under the lock so a concurrent Register cannot slip between
	r.mu.Lock()
	s, registered := r.stores[id]
	if registered == forRegistration {
		r.mu.Unlock()
		return s, nil
	}
	cancel := r.events.On(name, func(s S) {
		select {
		case ch <- s:
		default:
		}
	})
	r.mu.Unlock()
	defer cancel()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("waiting for store %q: %w: %w", id, ErrCancelled, ctx.Err())
	}
}

// Reset drops every store and handler without emitting events.
// Listeners stay subscribed.
func (r *Registry[S]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores = make(map[string]S)
	r.handlers = make(map[string]Factory[S])
}
