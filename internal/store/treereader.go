package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/tree"
)

// TreeReader is a read-only Remote store that materializes a tree lazily:
// the first time a folder with no children is expanded, it fetches that
// folder's items (filtered by the folder's key) and merges them in place.
//
// The tree is driven from one goroutine at a time; the reader's own loads
// are serialized.
type TreeReader struct {
	*Remote

	tree *tree.Tree

	loadMu   sync.Mutex // serializes loads; guards keyField
	keyField string
}

// NewTreeReader creates a disabled tree reader with an empty tree.
func NewTreeReader(reg *Registry, id string, opts Options) *TreeReader {
	r := &TreeReader{
		Remote:   newRemote(reg, id, opts),
		tree:     tree.New(),
		keyField: "key",
	}
	r.Bind(r, r)
	r.tree.SetOnExpand(r.onExpand)
	return r
}

// Tree returns the materialized tree.
func (r *TreeReader) Tree() *tree.Tree {
	return r.tree
}

// SetKeyField names the filter field that carries a folder's key (default "key").
func (r *TreeReader) SetKeyField(name string) {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	r.keyField = name
}

// onExpand loads an empty folder's children. A failed load fails the
// expansion, so expanding the folder again retries it.
func (r *TreeReader) onExpand(ctx context.Context, n tree.Node) error {
	if !n.IsFolder() || n.Len() > 0 {
		return nil
	}
	if err := r.Load(ctx, n); err != nil {
		r.config.Log(1, "store %s lazy load of %s failed: %v", r.id, n.Key(), err)
		return err
	}
	return nil
}

// Read fetches the top level with the store's window and merges it under the root.
func (r *TreeReader) Read(ctx context.Context, owner any) ([]*record.Record, error) {
	root := r.tree.Root()
	return r.read(ctx, owner, r.Query(), true, func(recs []*record.Record) error {
		return r.merge(root, recs)
	})
}

// Load fetches the children of n and merges them into the tree. The read
// event carries n as its owner.
func (r *TreeReader) Load(ctx context.Context, n tree.Node) error {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	q := r.Query()
	q.Filter = append(slices.DeleteFunc(q.Filter, func(c query.Condition) bool {
		return c.Name == r.keyField
	}), query.Condition{Name: r.keyField, Value: n.Key()})

	_, err := r.read(ctx, n, q, false, func(recs []*record.Record) error {
		return r.merge(n, recs)
	})
	return err
}

func (r *TreeReader) merge(n tree.Node, recs []*record.Record) error {
	items, err := tree.DecodeItems(record.Values(recs))
	if err != nil {
		return err
	}
	n.Merge(items)
	return nil
}

// OnWrite always fails: trees are read-only.
func (r *TreeReader) OnWrite(context.Context, query.Query, any) (any, error) {
	return nil, fmt.Errorf("store %q write: %w", r.id, ErrNotSupported)
}
