// Package controller binds a UI host to a store resolved through the
// registry: it forwards the store's notifications to the host and turns
// page, sort, filter and selection requests into store calls.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/registry"
	"github.com/zot/ui-data/internal/store"
)

var (
	// ErrNoCount is returned by LastPage when the store cannot report a total.
	ErrNoCount = errors.New("store cannot count its records")
	// ErrNotConnected is returned by store operations before HostConnected.
	ErrNotConnected = errors.New("controller not connected")
)

// Host is the UI object a controller serves. Storage names the store id.
type Host interface {
	Storage() string
}

// StorageTyper is implemented by hosts that want a missing store created
// through the registry factory of the named type instead of awaited.
type StorageTyper interface {
	StorageType() string
}

// DataReader receives read notifications.
type DataReader interface {
	OnDataRead(e store.Event)
}

// DataWriter receives write notifications.
type DataWriter interface {
	OnDataWrite(e store.Event)
}

// DataErrorHandler receives error notifications.
type DataErrorHandler interface {
	OnDataError(e store.Event)
}

// DataSelectHandler receives select notifications.
type DataSelectHandler interface {
	OnDataSelect(e store.Event)
}

// Attacher is implemented by hosts that track their controllers.
type Attacher interface {
	AddController(c *Controller)
	RemoveController(c *Controller)
}

// Options configures a Controller.
type Options struct {
	Config *config.Config
	// AutoRead issues a read as soon as the store is resolved.
	AutoRead bool
}

// Controller mediates between one host and one store.
type Controller struct {
	host     Host
	registry *store.Registry
	config   *config.Config
	autoRead bool

	mu      sync.Mutex
	store   store.Store
	cancels []func()
}

// New creates a controller for host. Nothing is resolved until HostConnected.
func New(reg *store.Registry, host Host, opts Options) *Controller {
	return &Controller{
		host:     host,
		registry: reg,
		config:   opts.Config,
		autoRead: opts.AutoRead,
	}
}

// Host returns the served host.
func (c *Controller) Host() Host {
	return c.host
}

// Store returns the resolved store, or nil before HostConnected.
func (c *Controller) Store() store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// HostConnected resolves the host's store, subscribes to its notifications
// and, with AutoRead, reads it. A store that does not exist yet is created
// when the host names a type, otherwise awaited (bounded by the configured
// wait timeout and ctx).
func (c *Controller) HostConnected(ctx context.Context) error {
	id := c.host.Storage()
	if id == "" {
		return fmt.Errorf("host has no storage id")
	}
	s, err := c.resolve(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.store != nil {
		c.mu.Unlock()
		c.HostDisconnected()
		c.mu.Lock()
	}
	c.store = s
	c.cancels = c.subscribe(s)
	c.mu.Unlock()

	if a, ok := c.host.(Attacher); ok {
		a.AddController(c)
	}
	c.config.Log(2, "controller connected to store %s", id)

	if c.autoRead {
		// failures already reached the host as error notifications
		if _, err := s.Read(ctx, c.host); err != nil && !errors.Is(err, store.ErrStale) {
			return err
		}
	}
	return nil
}

func (c *Controller) resolve(ctx context.Context, id string) (store.Store, error) {
	if s, ok := c.registry.Find(id); ok {
		return s, nil
	}
	if t, ok := c.host.(StorageTyper); ok && t.StorageType() != "" {
		s, ok, err := c.registry.NewHandler(t.StorageType(), id, true)
		switch {
		case errors.Is(err, registry.ErrDuplicateKey):
			// lost a race with another creator
			if s, ok := c.registry.Find(id); ok {
				return s, nil
			}
		case err != nil:
			return nil, err
		case ok:
			return s, nil
		}
	}

	if timeout := c.config.WaitTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	c.config.Log(2, "controller waiting for store %s", id)
	return c.registry.Wait(ctx, id, true)
}

func (c *Controller) subscribe(s store.Store) []func() {
	var cancels []func()
	if h, ok := c.host.(DataReader); ok {
		cancels = append(cancels, s.On(store.EventRead, h.OnDataRead))
	}
	if h, ok := c.host.(DataWriter); ok {
		cancels = append(cancels, s.On(store.EventWrite, h.OnDataWrite))
	}
	if h, ok := c.host.(DataErrorHandler); ok {
		cancels = append(cancels, s.On(store.EventError, h.OnDataError))
	}
	if h, ok := c.host.(DataSelectHandler); ok {
		cancels = append(cancels, s.On(store.EventSelect, h.OnDataSelect))
	}
	return cancels
}

// HostDisconnected unsubscribes from the store and detaches from the host.
func (c *Controller) HostDisconnected() {
	c.mu.Lock()
	cancels, s := c.cancels, c.store
	c.cancels, c.store = nil, nil
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if s == nil {
		return
	}
	if a, ok := c.host.(Attacher); ok {
		a.RemoveController(c)
	}
	c.config.Log(2, "controller disconnected from store %s", s.ID())
}

func (c *Controller) connected() (store.Store, error) {
	if s := c.Store(); s != nil {
		return s, nil
	}
	return nil, ErrNotConnected
}

// Read reads the store's current window on behalf of the host.
func (c *Controller) Read(ctx context.Context) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	return s.Read(ctx, c.host)
}

// Write writes data to the store on behalf of the host.
func (c *Controller) Write(ctx context.Context, data any) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	return s.Write(ctx, c.host, data)
}

// Sort replaces the store's sort keys and re-reads.
func (c *Controller) Sort(ctx context.Context, by query.Sort) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	s.SetSort(by)
	return s.Read(ctx, c.host)
}

// Filter replaces the store's filter and re-reads.
func (c *Controller) Filter(ctx context.Context, by query.Filter) ([]*record.Record, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}
	s.SetFilter(by)
	return s.Read(ctx, c.host)
}
