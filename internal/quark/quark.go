// Package quark is the registry of named in-process callables that remote
// stores in quark mode call instead of issuing a network request.
package quark

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zot/ui-data/internal/query"
)

// ErrFunctionNotFound is returned when a name does not resolve to a callable.
var ErrFunctionNotFound = errors.New("function not found")

// Call carries the arguments of a quark invocation. Data is nil for reads.
type Call struct {
	Skip   int
	Limit  int
	Filter query.Filter
	Sort   query.Sort
	Data   any
}

// Func is a quark callable. Its result is normalized like an HTTP response body.
type Func func(ctx context.Context, call Call) (any, error)

// Registry maps dotted names ("users.list") to callables.
type Registry struct {
	funcs map[string]Func
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds name to fn, replacing any previous binding.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// Unregister removes a binding.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.funcs, name)
}

// Lookup resolves name.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok || fn == nil {
		return nil, fmt.Errorf("%q: %w", name, ErrFunctionNotFound)
	}
	return fn, nil
}

// Invoke resolves and calls name.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) (any, error) {
	fn, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return fn(ctx, call)
}

// Names returns every bound name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
