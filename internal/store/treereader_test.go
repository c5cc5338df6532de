package store

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zot/ui-data/internal/quark"
	"github.com/zot/ui-data/internal/tree"
)

func folderQuark(calls *atomic.Int32) quark.Func {
	return func(_ context.Context, c quark.Call) (any, error) {
		calls.Add(1)
		for _, cond := range c.Filter {
			if cond.Name == "key" && cond.Value == "docs" {
				return []any{
					map[string]any{"key": "docs/a", "value": "A"},
					map[string]any{"key": "docs/b", "value": "B"},
				}, nil
			}
		}
		return []any{
			map[string]any{"key": "docs", "value": "Docs", "folder": true},
			map[string]any{"key": "readme", "value": "Readme"},
		}, nil
	}
}

func newTreeFixture(t *testing.T) (*TreeReader, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	quarks := quark.NewRegistry()
	quarks.Register("files.list", folderQuark(&calls))

	r := NewTreeReader(NewRegistry(), "files", Options{Quarks: quarks})
	r.SetMode(ModeQuark)
	r.SetReader("files.list")
	if err := r.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	return r, &calls
}

// TestTreeReaderLazyLoad verifies folders load their children on first expand
func TestTreeReaderLazyLoad(t *testing.T) {
	r, calls := newTreeFixture(t)
	if _, err := r.Read(context.Background(), nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	docs, ok := r.Tree().FindKey("docs")
	if !ok || !docs.IsFolder() || docs.Len() != 0 {
		t.Fatalf("Expected an empty docs folder")
	}
	if r.Tree().Len() != 2 {
		t.Errorf("Expected 2 nodes, got %d", r.Tree().Len())
	}

	var owner any
	r.On(EventRead, func(e Event) { owner = e.Owner })

	docs.Expand()
	if docs.Len() != 2 || docs.First().Value() != "A" {
		t.Errorf("Expected docs children to load, got %d", docs.Len())
	}
	if n, ok := owner.(tree.Node); !ok || n.Key() != "docs" {
		t.Errorf("Expected the folder as read owner, got %v", owner)
	}

	docs.Collapse()
	docs.Expand()
	if calls.Load() != 2 {
		t.Errorf("Expected 2 fetches, got %d", calls.Load())
	}
}

// TestTreeReaderMerge verifies re-reading updates nodes by key
func TestTreeReaderMerge(t *testing.T) {
	r, _ := newTreeFixture(t)
	ctx := context.Background()
	r.Read(ctx, nil)
	readme, _ := r.Tree().FindKey("readme")
	readme.SetValue("changed")

	r.Read(ctx, nil)
	if r.Tree().Len() != 2 {
		t.Errorf("Merge should not duplicate nodes, got %d", r.Tree().Len())
	}
	if readme.Value() != "Readme" {
		t.Errorf("Merge should refresh values, got %v", readme.Value())
	}
}

// TestTreeReaderWrite verifies trees are read-only
func TestTreeReaderWrite(t *testing.T) {
	r, _ := newTreeFixture(t)
	if _, err := r.Write(context.Background(), nil, 1); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Expected ErrNotSupported, got %v", err)
	}
}

// TestTreeReaderRetryFailedLoad verifies a folder whose load failed fetches
// again on the next expand
func TestTreeReaderRetryFailedLoad(t *testing.T) {
	var calls, folderCalls atomic.Int32
	quarks := quark.NewRegistry()
	list := folderQuark(&calls)
	quarks.Register("files.list", func(ctx context.Context, c quark.Call) (any, error) {
		for _, cond := range c.Filter {
			if cond.Name == "key" && cond.Value == "docs" && folderCalls.Add(1) == 1 {
				return nil, errors.New("disk offline")
			}
		}
		return list(ctx, c)
	})
	r := NewTreeReader(NewRegistry(), "files", Options{Quarks: quarks})
	r.SetMode(ModeQuark)
	r.SetReader("files.list")
	if err := r.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if _, err := r.Read(context.Background(), nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	docs, _ := r.Tree().FindKey("docs")

	var errs int
	r.On(EventError, func(Event) { errs++ })
	if err := docs.Expand(); err == nil {
		t.Fatal("Expected the failed load to fail the expand")
	}
	if errs != 1 || docs.Len() != 0 {
		t.Errorf("Expected one error event and no children, got %d and %d", errs, docs.Len())
	}

	docs.Collapse()
	if err := docs.Expand(); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if docs.Len() != 2 || folderCalls.Load() != 2 {
		t.Errorf("Expected the retry to load 2 children, got %d after %d fetches", docs.Len(), folderCalls.Load())
	}
}

// TestTreeReaderKeyField verifies folder loads filter on the configured field
func TestTreeReaderKeyField(t *testing.T) {
	var seen []string
	quarks := quark.NewRegistry()
	quarks.Register("files.list", func(_ context.Context, c quark.Call) (any, error) {
		for _, cond := range c.Filter {
			seen = append(seen, cond.Name+"="+fmt.Sprint(cond.Value))
		}
		if len(c.Filter) == 0 {
			return []any{map[string]any{"key": "docs", "folder": true}}, nil
		}
		return []any{}, nil
	})
	r := NewTreeReader(NewRegistry(), "files", Options{Quarks: quarks})
	r.SetMode(ModeQuark)
	r.SetReader("files.list")
	r.SetKeyField("parent")
	if err := r.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	r.Read(context.Background(), nil)
	docs, _ := r.Tree().FindKey("docs")
	if err := docs.ExpandContext(context.Background()); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if diff := cmp.Diff([]string{"parent=docs"}, seen); diff != "" {
		t.Errorf("Filters mismatch (-want +got):\n%s", diff)
	}
}
