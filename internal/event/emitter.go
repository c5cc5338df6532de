// Package event provides a small named-event emitter used by the registry and stores.
package event

import (
	"sync"
)

type listener[T any] struct {
	id int64
	fn func(T)
}

// Emitter dispatches payloads to listeners subscribed by event name.
// Listeners run synchronously on the emitting goroutine, in subscription order.
type Emitter[T any] struct {
	listeners map[string][]listener[T]
	nextID    int64
	mu        sync.RWMutex
}

// NewEmitter creates an empty emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{listeners: make(map[string][]listener[T])}
}

// On subscribes fn to name and returns a function that removes the subscription.
// Calling the returned function more than once is harmless.
func (e *Emitter[T]) On(name string, fn func(T)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[name] = append(e.listeners[name], listener[T]{id: id, fn: fn})
	return func() { e.off(name, id) }
}

func (e *Emitter[T]) off(name string, id int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[name]
	for i, l := range ls {
		if l.id == id {
			e.listeners[name] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(e.listeners[name]) == 0 {
		delete(e.listeners, name)
	}
}

// Emit delivers v to every listener of name.
func (e *Emitter[T]) Emit(name string, v T) {
	e.mu.RLock()
	ls := make([]listener[T], len(e.listeners[name]))
	copy(ls, e.listeners[name])
	e.mu.RUnlock()

	for _, l := range ls {
		l.fn(v)
	}
}

// Count returns the number of listeners subscribed to name.
func (e *Emitter[T]) Count(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

// Clear removes every listener.
func (e *Emitter[T]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]listener[T])
}
