package tree

import "context"

// Opened reports whether n is expanded. Leaves and the root are always open.
func (n Node) Opened() bool {
	e := n.entry()
	if e == nil {
		return false
	}
	return !e.folder || e.opened
}

// Visible reports whether every ancestor of n is open.
func (n Node) Visible() bool {
	for p := n.Parent(); p.Valid(); p = p.Parent() {
		if !p.Opened() {
			return false
		}
	}
	return n.Valid()
}

// Expand opens n with a background context. See ExpandContext.
func (n Node) Expand() error {
	return n.ExpandContext(context.Background())
}

// ExpandContext opens n, opening any closed ancestor first. The first time a
// folder opens, the tree's expand hook runs with ctx; if the hook fails, n
// stays open but counts as never expanded, so the next expansion runs the
// hook again. Children always get a Refresh change, since their visibility
// changed even though their own state did not.
func (n Node) ExpandContext(ctx context.Context) error {
	e := n.entry()
	if e == nil || !e.folder || n.IsRoot() {
		return nil
	}
	if p := n.Parent(); p.Valid() && !p.Opened() {
		if err := p.ExpandContext(ctx); err != nil {
			return err
		}
	}

	first := !e.expanded
	wasOpen := e.opened
	e.opened = true
	e.expanded = true
	if !wasOpen {
		n.t.notify(Change{Kind: Expand, Node: n})
	}
	if first && n.t.onExpand != nil {
		if err := n.t.onExpand(ctx, n); err != nil {
			e.expanded = false
			return err
		}
	}
	for _, c := range n.Children() {
		n.t.notify(Change{Kind: Refresh, Node: c})
	}
	return nil
}

// Collapse closes n after collapsing every open descendant, so observers
// see inner folders close before their container.
func (n Node) Collapse() {
	e := n.entry()
	if e == nil || !e.folder || n.IsRoot() {
		return
	}
	for _, c := range n.Children() {
		if c.IsFolder() && c.Opened() {
			c.Collapse()
		}
	}
	if e.opened {
		e.opened = false
		n.t.notify(Change{Kind: Collapse, Node: n})
	}
}

// Toggle expands a closed folder and collapses an open one.
func (n Node) Toggle() error {
	if n.Opened() {
		n.Collapse()
		return nil
	}
	return n.Expand()
}

// Selected reports the node's selection flag.
func (n Node) Selected() bool {
	e := n.entry()
	return e != nil && e.selected
}

// SetSelected changes the selection flag.
//
// In single-select mode selecting n deselects the tree's previous selection.
// In multi-select mode flags are independent and the parent additionally
// receives a PartialSelect change.
func (n Node) SetSelected(v bool) {
	e := n.entry()
	if e == nil || n.IsRoot() {
		return
	}
	t := n.t

	if t.mode == SingleSelect {
		if v {
			if t.selected != None && t.selected != n.id {
				if old := t.Node(t.selected); old.Valid() {
					old.entry().selected = false
					t.notify(Change{Kind: Select, Node: old})
				}
			}
			t.selected = n.id
		} else if t.selected == n.id {
			t.selected = None
		}
		if e.selected != v {
			e.selected = v
			t.notify(Change{Kind: Select, Node: n})
		}
		return
	}

	if e.selected == v {
		return
	}
	e.selected = v
	t.notify(Change{Kind: Select, Node: n})
	if p := n.Parent(); p.Valid() && !p.IsRoot() {
		t.notify(Change{Kind: PartialSelect, Node: p})
	}
}

// SelectAll selects n and, in multi-select mode, every descendant.
func (n Node) SelectAll() {
	if n.t == nil {
		return
	}
	if n.t.mode == SingleSelect {
		n.SetSelected(true)
		return
	}
	for d := range n.PreOrder() {
		d.SetSelected(true)
	}
}

// DeselectAll clears the selection of n and every descendant.
func (n Node) DeselectAll() {
	for d := range n.PreOrder() {
		d.SetSelected(false)
	}
}

// IsPartiallySelected reports a selected folder whose children are not all selected.
func (n Node) IsPartiallySelected() bool {
	if !n.Selected() || n.Len() == 0 {
		return false
	}
	return !n.Every(Node.Selected)
}

// Focused reports whether n holds the tree's focus.
func (n Node) Focused() bool {
	e := n.entry()
	return e != nil && e.focused
}

// SetFocused moves the tree's single focus to n, or clears it from n.
func (n Node) SetFocused(v bool) {
	e := n.entry()
	if e == nil || n.IsRoot() {
		return
	}
	t := n.t
	if v {
		if t.focused != None && t.focused != n.id {
			if old := t.Node(t.focused); old.Valid() {
				old.entry().focused = false
				t.notify(Change{Kind: Focus, Node: old})
			}
		}
		t.focused = n.id
	} else if t.focused == n.id {
		t.focused = None
	}
	if e.focused != v {
		e.focused = v
		t.notify(Change{Kind: Focus, Node: n})
	}
}
