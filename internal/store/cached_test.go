package store

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zot/ui-data/internal/query"
	"github.com/zot/ui-data/internal/record"
)

func newCachedFixture(t *testing.T, body string) (*Cached, func() int32) {
	t.Helper()
	srv, hits, _ := fixtureServer(t, body)
	c := NewCached(NewRegistry(), "people", Options{})
	c.SetSource(srv.URL)
	if err := c.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	return c, func() int32 { return hits.Load() }
}

// TestCachedFetchesOnce verifies reads after the first are served from memory
func TestCachedFetchesOnce(t *testing.T) {
	c, hits := newCachedFixture(t, `[{"a":1},{"a":2}]`)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Read(ctx, nil); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
	}
	if hits() != 1 {
		t.Errorf("Expected 1 fetch, got %d", hits())
	}

	c.Clear()
	if _, err := c.Read(ctx, nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if hits() != 2 {
		t.Errorf("Clear should force a new fetch, got %d", hits())
	}
}

// TestCachedWindow verifies filter, then sort, then paginate over the snapshot
func TestCachedWindow(t *testing.T) {
	c, _ := newCachedFixture(t, `[{"a":2},{"a":1},{"a":3}]`)
	c.SetSort(query.Sort{{Column: "a", Direction: query.Asc}})
	c.SetLimit(2)

	recs, err := c.Read(context.Background(), nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff([]any{1.0, 2.0}, fieldValues(recs, "a")); diff != "" {
		t.Errorf("page (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{2.0, 1.0, 3.0}, fieldValues(c.Snapshot(), "a")); diff != "" {
		t.Errorf("snapshot must keep its order (-want +got):\n%s", diff)
	}

	c.SetSkip(2)
	c.SetFilter(query.Filter{{Name: "a", Value: 1.0, Operator: query.Gt}})
	recs, _ = c.Read(context.Background(), nil)
	if len(recs) != 0 {
		t.Errorf("Expected empty page, got %v", recs)
	}
	if n, ok := c.Count(); !ok || n != 2 {
		t.Errorf("Expected count 2, got %d", n)
	}
}

// TestCachedAppendRemove verifies local edits of the snapshot
func TestCachedAppendRemove(t *testing.T) {
	c, hits := newCachedFixture(t, `[{"a":1}]`)
	ctx := context.Background()
	if _, err := c.Read(ctx, nil); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	added, err := c.Append([]any{map[string]any{"a": 5.0}})
	if err != nil || len(added) != 1 {
		t.Fatalf("Append failed: %v", err)
	}
	recs, _ := c.Read(ctx, nil)
	if len(recs) != 2 {
		t.Errorf("Expected 2 records, got %d", len(recs))
	}

	c.Remove(added[0])
	recs, _ = c.Read(ctx, nil)
	if diff := cmp.Diff([]any{1.0}, fieldValues(recs, "a")); diff != "" {
		t.Errorf("after remove (-want +got):\n%s", diff)
	}
	if hits() != 1 {
		t.Errorf("Local edits must not refetch, got %d fetches", hits())
	}
}

// TestCachedAppendBeforeLoad verifies appended data survives the first fetch
func TestCachedAppendBeforeLoad(t *testing.T) {
	c, hits := newCachedFixture(t, `[{"a":1}]`)
	if _, err := c.Append(map[string]any{"a": 9.0}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	recs, err := c.Read(context.Background(), nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if hits() != 0 || len(recs) != 1 {
		t.Errorf("A non-empty snapshot is served as is, got %d fetches, %d records", hits(), len(recs))
	}
}

// TestCachedSearch verifies bare-value search and clearing it
func TestCachedSearch(t *testing.T) {
	c, _ := newCachedFixture(t, `[{"name":"Alice"},{"name":"Bob"},{"name":"alicia"}]`)
	ctx := context.Background()

	recs, err := c.Search(ctx, nil, "ali")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if diff := cmp.Diff([]any{"Alice", "alicia"}, fieldValues(recs, "name")); diff != "" {
		t.Errorf("search (-want +got):\n%s", diff)
	}

	recs, _ = c.Search(ctx, nil, "")
	if len(recs) != 3 || len(c.Filter()) != 0 {
		t.Errorf("Empty search should clear the filter, got %d records", len(recs))
	}
}

// TestCachedClearUnselects verifies Clear drops the selection
func TestCachedClearUnselects(t *testing.T) {
	c, _ := newCachedFixture(t, `[1,2]`)
	recs, _ := c.Read(context.Background(), nil)
	c.AddSelected(recs...)
	c.Clear()
	if record.IsSelected(recs[0]) || len(c.Snapshot()) != 0 {
		t.Error("Clear should unselect and empty the snapshot")
	}
}

// TestCachedDisable verifies disabling discards the snapshot
func TestCachedDisable(t *testing.T) {
	c, hits := newCachedFixture(t, `[1,2]`)
	ctx := context.Background()
	c.Read(ctx, nil)
	_ = c.Disable()
	if len(c.Snapshot()) != 0 {
		t.Error("Disable should discard the snapshot")
	}
	_ = c.Enable()
	c.Read(ctx, nil)
	if hits() != 2 {
		t.Errorf("Expected a fetch per enable cycle, got %d", hits())
	}
}

// TestCachedBypass verifies a defeated cache fetches every time
func TestCachedBypass(t *testing.T) {
	c, hits := newCachedFixture(t, `[1,2]`)
	c.SetCached(false)
	ctx := context.Background()
	c.Read(ctx, nil)
	c.Read(ctx, nil)
	if hits() != 2 || c.Cached() {
		t.Errorf("Expected 2 fetches with the cache off, got %d", hits())
	}
}

// TestCachedHugeLimit verifies a limit near math.MaxInt pages to the end
func TestCachedHugeLimit(t *testing.T) {
	c, _ := newCachedFixture(t, `[1,2,3]`)
	c.SetSkip(1)
	c.SetLimit(math.MaxInt)

	recs, err := c.Read(context.Background(), nil)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff([]any{2.0, 3.0}, record.Values(recs)); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}
}
