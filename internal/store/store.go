// Package store implements the data stores UI hosts read from and write to:
// a common read/write envelope (Base), network and in-process fetching
// (Remote), an in-memory snapshot cache (Cached) and a lazily loaded tree
// (TreeReader). Stores find each other through a Registry.
package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/zot/ui-data/internal/config"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/registry"
)

var (
	// ErrNotRegistered is returned by reads and writes on a disabled store.
	ErrNotRegistered = errors.New("store not registered")
	// ErrMissingSource is returned when a URL is needed but no source is set.
	ErrMissingSource = errors.New("missing source")
	// ErrNotSupported is returned by operations a store refuses, such as writing a tree.
	ErrNotSupported = errors.New("not supported")
	// ErrNotImplemented is returned by a Base whose fetch/persist operations were never bound.
	ErrNotImplemented = errors.New("not implemented")
	// ErrStale is returned by a read whose result was overtaken by a newer read.
	ErrStale = errors.New("read superseded by a newer read")
)

// Event names.
const (
	EventRead   = "read"
	EventWrite  = "write"
	EventError  = "error"
	EventSelect = "select"
)

// Event is the payload of a store notification.
// Type is "read" or "write" on error events.
type Event struct {
	Name    string
	Type    string
	Store   string
	Owner   any
	Records []*record.Record
	Data    any
	Err     error
}

// Store is the contract every store implements.
type Store interface {
	ID() string
	Enabled() bool
	Enable() error
	Disable() error

	Read(ctx context.Context, owner any) ([]*record.Record, error)
	Write(ctx context.Context, owner any, data any) ([]*record.Record, error)

	Skip() int
	SetSkip(n int)
	Limit() int
	SetLimit(n int)
	Sort() query.Sort
	SetSort(s query.Sort)
	Filter() query.Filter
	SetFilter(f query.Filter)
	Query() query.Query

	On(name string, fn func(Event)) func()

	AddSelected(recs ...*record.Record)
	RemoveSelected(recs ...*record.Record)
	ClearSelected(recs []*record.Record)
	IsSelected(r *record.Record) bool
	GetSelected(recs []*record.Record) []*record.Record
}

// Counter is implemented by stores that know how many records match their filter.
type Counter interface {
	Count() (int, bool)
}

// Operations are the fetch and persist steps a concrete store supplies to Base.
type Operations interface {
	OnRead(ctx context.Context, q query.Query) (any, error)
	OnWrite(ctx context.Context, q query.Query, data any) (any, error)
}

// readCommitter is implemented by operations that keep state from a read
// result. Base calls it only for sequenced reads that were not dropped.
type readCommitter interface {
	commitRead(raw any)
}

// Processor transforms records after a read or write.
type Processor func(ctx context.Context, owner any, recs []*record.Record) ([]*record.Record, error)

// Preprocessor transforms outgoing write data.
type Preprocessor func(ctx context.Context, owner any, data any) (any, error)

// Registry is the store directory.
type Registry = registry.Registry[Store]

// NewRegistry creates an empty store registry.
func NewRegistry() *Registry {
	return registry.New[Store]()
}

// Options carries the collaborators shared by stores.
type Options struct {
	Config *config.Config
	// Quarks resolves quark-mode reader and writer names.
	Quarks *quark.Registry
	// Client issues HTTP requests; http.DefaultClient when nil.
	Client *http.Client
	// BaseURL prefixes relative sources ("/data/users").
	BaseURL string
}

// RegisterHandlers installs the remote, cached and tree factories on reg.
func RegisterHandlers(reg *Registry, opts Options) {
	reg.AddHandler("remote", func(id string) (Store, error) {
		return NewRemote(reg, id, opts), nil
	})
	reg.AddHandler("cached", func(id string) (Store, error) {
		return NewCached(reg, id, opts), nil
	})
	reg.AddHandler("tree", func(id string) (Store, error) {
		return NewTreeReader(reg, id, opts), nil
	})
}
