package tree

import (
	"encoding/json"
	"fmt"
)

// NodeJSON is the exported form of a node. Folders always carry Items (maybe
// empty); leaves never do. Folder marks a lazily-loaded folder on import
// when Items is absent.
type NodeJSON struct {
	Key      string      `json:"key,omitempty"`
	Value    any         `json:"value,omitempty"`
	Opened   bool        `json:"opened,omitempty"`
	Focused  bool        `json:"focused,omitempty"`
	Selected bool        `json:"selected,omitempty"`
	Folder   bool        `json:"folder,omitempty"`
	Items    *[]NodeJSON `json:"items,omitempty"`
}

func (j NodeJSON) isFolder() bool {
	return j.Items != nil || j.Folder
}

// Export returns the node's exported form. Anonymous nodes export their path key.
func (n Node) Export() NodeJSON {
	e := n.entry()
	if e == nil {
		return NodeJSON{}
	}
	j := NodeJSON{
		Key:      n.Key(),
		Value:    e.value,
		Opened:   e.folder && e.opened,
		Focused:  e.focused,
		Selected: e.selected,
	}
	if e.folder {
		items := n.exportChildren()
		j.Items = &items
	}
	return j
}

func (n Node) exportChildren() []NodeJSON {
	children := n.Children()
	items := make([]NodeJSON, len(children))
	for i, c := range children {
		items[i] = c.Export()
	}
	return items
}

// MarshalJSON exports a node; the root exports as a bare array of its children.
func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsRoot() {
		return json.Marshal(n.exportChildren())
	}
	return json.Marshal(n.Export())
}

// ToJSON exports the whole tree.
func (t *Tree) ToJSON() ([]byte, error) {
	return json.Marshal(t.Root())
}

// FromJSON replaces the tree's contents with an exported array of nodes,
// restoring opened, selected and focused flags without running hooks.
func (t *Tree) FromJSON(data []byte) error {
	var items []NodeJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decoding tree: %w", err)
	}
	t.Clear()
	t.selected = None
	t.focused = None
	root := t.Root()
	for _, item := range items {
		root.build(item)
	}
	t.notify(Change{Kind: Reset, Node: root})
	return nil
}

func (n Node) build(j NodeJSON) Node {
	t := n.t
	id := t.alloc(Spec{Key: j.Key, Value: j.Value, Folder: j.isFolder()}, n.id)
	pe := n.entry()
	if !pe.folder {
		pe.folder = true
		pe.children = []ID{}
	}
	pe.children = append(pe.children, id)

	child := Node{t: t, id: id}
	e := child.entry()
	if j.Items != nil {
		for _, item := range *j.Items {
			child.build(item)
		}
	}
	if e.folder {
		e.opened = j.Opened
		e.expanded = j.Opened && len(e.children) > 0
	}
	if j.Selected {
		e.selected = true
		if t.mode == SingleSelect {
			if old := t.Node(t.selected); old.Valid() && t.selected != id {
				old.entry().selected = false
			}
			t.selected = id
		}
	}
	if j.Focused {
		if old := t.Node(t.focused); old.Valid() && t.focused != id {
			old.entry().focused = false
		}
		e.focused = true
		t.focused = id
	}
	return child
}

// Merge folds items into n's children: an item whose key matches an existing
// child updates it (recursing into its items), any other item is appended.
// Children that are not mentioned are left alone.
func (n Node) Merge(items []NodeJSON) {
	if !n.Valid() {
		return
	}
	e := n.entry()
	if !e.folder {
		e.folder = true
		e.children = []ID{}
	}
	for _, item := range items {
		existing, found := Node{}, false
		if item.Key != "" {
			existing, found = n.Find(func(c Node) bool { return c.Key() == item.Key })
		}
		if !found {
			child := n.build(item)
			n.t.notify(Change{Kind: Insert, Node: child})
			continue
		}
		if item.Value != nil {
			existing.SetValue(item.Value)
		}
		if item.isFolder() {
			if item.Items != nil {
				existing.Merge(*item.Items)
			} else if !existing.IsFolder() {
				ee := existing.entry()
				ee.folder = true
				ee.children = []ID{}
			}
		}
	}
}

// DecodeItems parses node exports from JSON-compatible values (as decoded by encoding/json).
func DecodeItems(values []any) ([]NodeJSON, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var items []NodeJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding tree items: %w", err)
	}
	return items, nil
}
