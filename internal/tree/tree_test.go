package tree

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fixture builds:
//
//	a
//	  a1
//	    a1x
//	  a2
//	b
func fixture() (*Tree, map[string]Node) {
	t := New()
	root := t.Root()
	n := map[string]Node{}
	n["a"] = root.Append(Spec{Key: "a", Folder: true})
	n["a1"] = n["a"].Append(Spec{Key: "a1", Folder: true})
	n["a1x"] = n["a1"].Append(Spec{Key: "a1x", Value: "leaf"})
	n["a2"] = n["a"].Append(Spec{Key: "a2"})
	n["b"] = root.Append(Spec{Key: "b"})
	return t, n
}

func keys(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key()
	}
	return out
}

type recorder struct {
	changes []string
}

func (r *recorder) TreeChanged(c Change) {
	r.changes = append(r.changes, c.Kind.String()+":"+c.Node.Key())
}

// TestNavigation verifies parent, sibling and level navigation
func TestNavigation(t *testing.T) {
	tr, n := fixture()

	if tr.Root().Level() != -1 {
		t.Errorf("Expected root level -1, got %d", tr.Root().Level())
	}
	if n["a"].Level() != 0 || n["a1x"].Level() != 2 {
		t.Errorf("Unexpected levels %d %d", n["a"].Level(), n["a1x"].Level())
	}
	if n["a1"].Parent() != n["a"] {
		t.Error("a1's parent should be a")
	}
	if n["a1"].Next() != n["a2"] || n["a2"].Prev() != n["a1"] {
		t.Error("Sibling navigation broken")
	}
	if n["a2"].Next().Valid() || n["a1"].Prev().Valid() {
		t.Error("Expected no sibling past the ends")
	}
	if n["a"].First() != n["a1"] || n["a"].Last() != n["a2"] {
		t.Error("First/Last broken")
	}
	if !n["a2"].IsLeaf() || !n["a"].IsFolder() {
		t.Error("Folder/leaf classification broken")
	}
	if n["a2"].Children() != nil {
		t.Error("Leaves have no children")
	}
	if tr.Len() != 5 {
		t.Errorf("Expected 5 nodes, got %d", tr.Len())
	}
}

// TestTraversal verifies pre-order and post-order
func TestTraversal(t *testing.T) {
	tr, _ := fixture()

	var pre, post []string
	for n := range tr.Root().PreOrder() {
		if !n.IsRoot() {
			pre = append(pre, n.Key())
		}
	}
	for n := range tr.Root().PostOrder() {
		if !n.IsRoot() {
			post = append(post, n.Key())
		}
	}

	if diff := cmp.Diff([]string{"a", "a1", "a1x", "a2", "b"}, pre); diff != "" {
		t.Errorf("pre-order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a1x", "a1", "a2", "a", "b"}, post); diff != "" {
		t.Errorf("post-order (-want +got):\n%s", diff)
	}

	// early break must stop the walk
	count := 0
	for range tr.Root().PreOrder() {
		count++
		if count == 2 {
			break
		}
	}
	if count != 2 {
		t.Errorf("Expected break after 2, got %d", count)
	}
}

// TestArrayHelpers verifies ForEach, Find, Filter and Every over children
func TestArrayHelpers(t *testing.T) {
	_, n := fixture()
	a := n["a"]

	var seen []int
	a.ForEach(func(_ Node, i int) { seen = append(seen, i) })
	if !slices.Equal(seen, []int{0, 1}) {
		t.Errorf("ForEach indices %v", seen)
	}

	found, ok := a.Find(func(c Node) bool { return c.IsLeaf() })
	if !ok || found != n["a2"] {
		t.Error("Find should return a2")
	}
	if got := keys(a.Filter(Node.IsFolder)); !slices.Equal(got, []string{"a1"}) {
		t.Errorf("Filter returned %v", got)
	}
	if a.Every(Node.IsLeaf) {
		t.Error("Every should be false")
	}
	if !n["a2"].Every(Node.IsLeaf) {
		t.Error("Every over no children should be true")
	}
}

// TestAnonymousKeys verifies index-path keys
func TestAnonymousKeys(t *testing.T) {
	tr := New()
	x := tr.Root().Append(Spec{Folder: true})
	tr.Root().Append(Spec{})
	y := x.Append(Spec{})
	z := x.Append(Spec{})

	if x.Key() != "0" || y.Key() != "0.0" || z.Key() != "0.1" {
		t.Errorf("Unexpected path keys %s %s %s", x.Key(), y.Key(), z.Key())
	}

	x.Insert(0, Spec{Key: "first"})
	if y.Key() != "0.1" {
		t.Errorf("Path key should follow insertion, got %s", y.Key())
	}
}

// TestExpandOpensAncestors verifies ancestors open before the node
func TestExpandOpensAncestors(t *testing.T) {
	tr, n := fixture()
	rec := &recorder{}
	tr.AddObserver(rec)

	n["a1"].Expand()

	if !n["a"].Opened() || !n["a1"].Opened() {
		t.Fatal("Expected a and a1 open")
	}
	want := []string{"expand:a", "refresh:a1", "refresh:a2", "expand:a1", "refresh:a1x"}
	if diff := cmp.Diff(want, rec.changes); diff != "" {
		t.Errorf("changes (-want +got):\n%s", diff)
	}
	if !n["a1x"].Visible() {
		t.Error("a1x should be visible")
	}
}

// TestCollapseChildrenFirst verifies descendants close before the node
func TestCollapseChildrenFirst(t *testing.T) {
	tr, n := fixture()
	n["a1"].Expand()

	rec := &recorder{}
	tr.AddObserver(rec)
	n["a"].Collapse()

	if diff := cmp.Diff([]string{"collapse:a1", "collapse:a"}, rec.changes); diff != "" {
		t.Errorf("changes (-want +got):\n%s", diff)
	}
	if n["a1x"].Visible() {
		t.Error("a1x should be hidden")
	}

	tr.RemoveObserver(rec)
	n["a"].Toggle()
	if len(rec.changes) != 2 {
		t.Error("Removed observer still notified")
	}
}

// TestExpandHookOnce verifies the hook only runs on first expansion
func TestExpandHookOnce(t *testing.T) {
	tr, n := fixture()
	calls := 0
	tr.SetOnExpand(func(context.Context, Node) error {
		calls++
		return nil
	})

	n["a"].Expand()
	n["a"].Collapse()
	n["a"].Expand()
	n["a2"].Expand()

	if calls != 1 {
		t.Errorf("Expected 1 hook call, got %d", calls)
	}
	if !n["a2"].Opened() {
		t.Error("Leaves report opened")
	}
}

// TestSingleSelect verifies selecting B deselects A
func TestSingleSelect(t *testing.T) {
	tr, n := fixture()

	n["a1"].SetSelected(true)
	n["b"].SetSelected(true)

	if n["a1"].Selected() {
		t.Error("a1 should have been deselected")
	}
	if sel, ok := tr.Selected(); !ok || sel != n["b"] {
		t.Error("Expected b to be the tree selection")
	}

	n["b"].SetSelected(false)
	if _, ok := tr.Selected(); ok {
		t.Error("Expected no selection")
	}
}

// TestMultiSelect verifies independent flags and parent notifications
func TestMultiSelect(t *testing.T) {
	tr, n := fixture()
	tr.SetMode(MultiSelect)
	rec := &recorder{}
	tr.AddObserver(rec)

	n["a1"].SetSelected(true)
	n["a2"].SetSelected(true)

	if !n["a1"].Selected() || !n["a2"].Selected() {
		t.Error("Both nodes should stay selected")
	}
	want := []string{"select:a1", "partial-select:a", "select:a2", "partial-select:a"}
	if diff := cmp.Diff(want, rec.changes); diff != "" {
		t.Errorf("changes (-want +got):\n%s", diff)
	}

	n["a"].SetSelected(true)
	n["a1"].SetSelected(false)
	if !n["a"].IsPartiallySelected() {
		t.Error("a should be partially selected")
	}

	n["a"].SelectAll()
	if n["a"].IsPartiallySelected() || !n["a1x"].Selected() {
		t.Error("SelectAll should select every descendant")
	}
	if got := keys(tr.SelectedNodes()); !slices.Equal(got, []string{"a", "a1", "a1x", "a2"}) {
		t.Errorf("SelectedNodes returned %v", got)
	}

	n["a"].DeselectAll()
	if len(tr.SelectedNodes()) != 0 {
		t.Error("DeselectAll should clear the subtree")
	}
}

// TestFocusIsSingle verifies focus moves regardless of selection mode
func TestFocusIsSingle(t *testing.T) {
	tr, n := fixture()
	tr.SetMode(MultiSelect)

	n["a"].SetFocused(true)
	n["b"].SetFocused(true)

	if n["a"].Focused() {
		t.Error("a should have lost focus")
	}
	if f, ok := tr.Focused(); !ok || f != n["b"] {
		t.Error("b should be focused")
	}
}

// TestRemoveReleasesSelection verifies detaching drops selection and focus
func TestRemoveReleasesSelection(t *testing.T) {
	tr, n := fixture()
	n["a1x"].SetSelected(true)
	n["a1x"].SetFocused(true)

	n["a1"].Remove()

	if _, ok := tr.Selected(); ok {
		t.Error("Selection should be released")
	}
	if _, ok := tr.Focused(); ok {
		t.Error("Focus should be released")
	}
	if n["a"].Len() != 1 {
		t.Errorf("Expected 1 child left, got %d", n["a"].Len())
	}
	if n["a1"].Parent().Valid() {
		t.Error("Removed node should be detached")
	}

	n["a1"].Release()
	if n["a1"].Valid() || n["a1x"].Valid() {
		t.Error("Released nodes should be gone")
	}
	if tr.Len() != 3 {
		t.Errorf("Expected 3 nodes, got %d", tr.Len())
	}
}

// TestExpandHookRetry verifies a failed hook runs again on the next expansion
func TestExpandHookRetry(t *testing.T) {
	tr, n := fixture()
	calls := 0
	fail := errors.New("offline")
	tr.SetOnExpand(func(context.Context, Node) error {
		calls++
		if calls == 1 {
			return fail
		}
		return nil
	})

	if err := n["a"].Expand(); !errors.Is(err, fail) {
		t.Fatalf("Expected the hook error, got %v", err)
	}
	if !n["a"].Opened() {
		t.Error("Expected a to stay open after a failed hook")
	}
	if err := n["a"].Expand(); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	n["a"].Collapse()
	n["a"].Expand()
	if calls != 2 {
		t.Errorf("Expected 2 hook calls, got %d", calls)
	}
}

// TestExpandAncestorFails verifies a failed ancestor stops the expansion
func TestExpandAncestorFails(t *testing.T) {
	tr, n := fixture()
	fail := errors.New("offline")
	tr.SetOnExpand(func(_ context.Context, nd Node) error {
		if nd.Key() == "a" {
			return fail
		}
		return nil
	})

	if err := n["a1"].Expand(); !errors.Is(err, fail) {
		t.Errorf("Expected the ancestor's hook error, got %v", err)
	}
	if n["a1"].Opened() {
		t.Error("a1 should not open when its parent failed to expand")
	}
}

// TestJSONRoundTrip verifies export/import preserves shape and flags
func TestJSONRoundTrip(t *testing.T) {
	tr, n := fixture()
	n["a1"].Expand()
	n["a1x"].SetSelected(true)
	n["b"].SetFocused(true)
	n["b"].SetValue(map[string]any{"name": "bee"})

	data, err := tr.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	back := New()
	if err := back.FromJSON(data); err != nil {
		t.Fatalf("FromJSON failed: %v", err)
	}

	if diff := cmp.Diff(tr.Root().exportChildren(), back.Root().exportChildren()); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}

	x, ok := back.FindKey("a1x")
	if !ok || !x.Selected() {
		t.Fatal("a1x should be selected after import")
	}
	if sel, _ := back.Selected(); sel != x {
		t.Error("Import should restore the tree selection")
	}
	if f, _ := back.Focused(); f.Key() != "b" {
		t.Error("Import should restore the focus")
	}
	if a1, _ := back.FindKey("a1"); !a1.Opened() || a1.IsLeaf() {
		t.Error("a1 should be an open folder")
	}
}

// TestRootExportsArray verifies the root exports as a bare array
func TestRootExportsArray(t *testing.T) {
	tr := New()
	tr.Root().Append(Spec{Key: "only"})
	data, err := tr.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if string(data) != `[{"key":"only"}]` {
		t.Errorf("Unexpected export %s", data)
	}
}

// TestMerge verifies incremental merge keeps untouched nodes
func TestMerge(t *testing.T) {
	tr, n := fixture()
	n["a1x"].SetSelected(true)

	empty := []NodeJSON{}
	n["a"].Merge([]NodeJSON{
		{Key: "a1", Items: &[]NodeJSON{{Key: "a1y"}}},
		{Key: "a3", Items: &empty},
	})

	if got := keys(n["a"].Children()); !slices.Equal(got, []string{"a1", "a2", "a3"}) {
		t.Errorf("Unexpected children %v", got)
	}
	if got := keys(n["a1"].Children()); !slices.Equal(got, []string{"a1x", "a1y"}) {
		t.Errorf("Unexpected a1 children %v", got)
	}
	if !n["a1x"].Selected() {
		t.Error("Merge must not disturb existing nodes")
	}
	a3, _ := tr.FindKey("a3")
	if !a3.IsFolder() || a3.Len() != 0 {
		t.Error("a3 should be an empty folder")
	}
}

// TestDecodeItems verifies decoded JSON values become node exports
func TestDecodeItems(t *testing.T) {
	items, err := DecodeItems([]any{
		map[string]any{"key": "x", "folder": true},
		map[string]any{"key": "y", "value": "v"},
	})
	if err != nil {
		t.Fatalf("DecodeItems failed: %v", err)
	}
	if len(items) != 2 || !items[0].isFolder() || items[1].isFolder() || items[1].Value != "v" {
		t.Errorf("Unexpected items %+v", items)
	}
}
